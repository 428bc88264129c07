package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
)

// Appointment is a booking-store row. The scheduling service only reads
// appointments, and only to derive busy ranges; cancelled rows are filtered
// out at the repository so the engine never sees dead occupancy.
type Appointment struct {
	ID             uuid.UUID         `db:"id" json:"id"`
	OrganizationID uuid.UUID         `db:"organization_id" json:"organization_id"`
	DoctorID       uuid.UUID         `db:"doctor_id" json:"doctor_id"`
	PatientID      uuid.UUID         `db:"patient_id" json:"patient_id"`
	StartTime      time.Time         `db:"start_time" json:"start_time"`
	EndTime        time.Time         `db:"end_time" json:"end_time"`
	Status         AppointmentStatus `db:"status" json:"status"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at" json:"updated_at"`
}

// BusyRange converts the appointment to its UTC occupancy interval.
func (a *Appointment) BusyRange() BusyRange {
	return BusyRange{Start: a.StartTime.UTC(), End: a.EndTime.UTC()}
}
