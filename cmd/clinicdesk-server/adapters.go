package main

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinicdesk/internal/domain/catalog"
	"github.com/clinicdesk/clinicdesk/internal/domain/ledger"
	"github.com/clinicdesk/clinicdesk/internal/domain/patient"
)

type itemGetter interface {
	GetItem(ctx context.Context, professionalID, id uuid.UUID) (*catalog.Item, error)
}

type patientGetter interface {
	GetPatient(ctx context.Context, professionalID, id uuid.UUID) (*patient.Patient, error)
}

// catalogLookup implements ledger.ServiceLookup on top of the catalog.
type catalogLookup struct {
	items itemGetter
}

func (l catalogLookup) LookupService(ctx context.Context, professionalID, id uuid.UUID) (*ledger.ServiceInfo, error) {
	item, err := l.items.GetItem(ctx, professionalID, id)
	if err != nil {
		return nil, err
	}
	return &ledger.ServiceInfo{
		ID:       item.ID,
		Name:     item.Name,
		Price:    ledger.Amount{NullDecimal: item.Price},
		Duration: item.Duration(),
	}, nil
}

// patientLookup implements ledger.PatientLookup on top of the patient
// directory.
type patientLookup struct {
	patients patientGetter
}

func (l patientLookup) LookupPatient(ctx context.Context, professionalID, id uuid.UUID) (*ledger.PatientInfo, error) {
	p, err := l.patients.GetPatient(ctx, professionalID, id)
	if err != nil {
		return nil, err
	}
	return &ledger.PatientInfo{
		ID:    p.ID,
		Name:  p.FullName(),
		Phone: p.PhoneNumber(),
	}, nil
}
