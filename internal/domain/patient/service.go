package patient

import (
	"context"

	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/backend"
)

// API is the part of the backend client the patient view calls.
type API interface {
	Departments(ctx context.Context, cred backend.Credentials) ([]string, error)
	Patients(ctx context.Context, cred backend.Credentials, flag backend.ReviewFlag) ([]backend.PatientInfo, error)
}

type Service struct {
	api API
}

func NewService(api API) *Service {
	return &Service{api: api}
}

func (s *Service) Departments(ctx context.Context, cred backend.Credentials) ([]string, error) {
	return s.api.Departments(ctx, cred)
}

// Search lists the patients with the given review flag. The result replaces
// whatever was shown before; there is no paging.
func (s *Service) Search(ctx context.Context, cred backend.Credentials, flag backend.ReviewFlag) ([]backend.PatientInfo, error) {
	list, err := s.api.Patients(ctx, cred, flag)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []backend.PatientInfo{}
	}
	return list, nil
}
