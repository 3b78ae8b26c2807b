package backendstub

import "github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/backend"

// User is a staff account known to the mock backend. Admins log in with a
// password; everyone else logs in with the user id alone.
type User struct {
	ID       string
	Name     string
	DeptCode string
	Admin    bool
	Password string
}

// Fixtures is the data set served by the mock backend.
type Fixtures struct {
	Users       []User
	Departments []string
	Patients    []backend.PatientInfo
	Settings    backend.AdminSettings
}

func (f *Fixtures) user(id string) (User, bool) {
	for _, u := range f.Users {
		if u.ID == id {
			return u, true
		}
	}
	return User{}, false
}

// DefaultFixtures returns the development data set: a general user doc1 in
// ER, an administrator root, and a few patients in each review state.
func DefaultFixtures() Fixtures {
	return Fixtures{
		Users: []User{
			{ID: "doc1", Name: "Dr. Kim", DeptCode: "ER"},
			{ID: "doc2", Name: "Dr. Park", DeptCode: "IM"},
			{ID: "nurse1", DeptCode: "ER"},
			{ID: "root", Name: "System Admin", Admin: true, Password: "admin1234"},
		},
		Departments: []string{"ER", "IM", "OS", "PED"},
		Patients: []backend.PatientInfo{
			{PatID: "P0001", PatName: "Lee Minho", Age: 54, DeptCode: "ER", PrsnIDPre: "700312", ClncCnfrmFlag: backend.ReviewUnreviewed, JuminNum: "7003121234567", EncryptedResidentNumber: "enc-P0001"},
			{PatID: "P0002", PatName: "Choi Yuna", Age: 31, DeptCode: "ER", PrsnIDPre: "930807", ClncCnfrmFlag: backend.ReviewUnreviewed, JuminNum: "9308072345678", EncryptedResidentNumber: "enc-P0002"},
			{PatID: "P0003", PatName: "Jung Hoseok", Age: 67, DeptCode: "ER", PrsnIDPre: "570120", ClncCnfrmFlag: backend.ReviewHeld, JuminNum: "5701201456789", EncryptedResidentNumber: "enc-P0003"},
			{PatID: "P0004", PatName: "Han Jisoo", Age: 8, DeptCode: "PED", PrsnIDPre: "170505", ClncCnfrmFlag: backend.ReviewReviewed, JuminNum: "1705054567890", EncryptedResidentNumber: "enc-P0004"},
			{PatID: "P0005", PatName: "Kang Daniel", Age: 45, DeptCode: "IM", PrsnIDPre: "800210", ClncCnfrmFlag: backend.ReviewReviewed, JuminNum: "8002101678901", EncryptedResidentNumber: "enc-P0005"},
		},
		Settings: backend.AdminSettings{
			ThirdPartyAuthURL:    "https://auth.example.org/oauth",
			ClientID:             "portal-client",
			ClientSecret:         "change-me",
			UtilizationServiceNo: "S-0001",
			InstitutionCode:      "11100001",
			SeedKey:              "seed-dev",
		},
	}
}
