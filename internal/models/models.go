/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/friendsincode/lopan_factory/internal/cutoff"
)

// RoleName enumerates the factory RBAC roles.
type RoleName string

const (
	RoleSalesperson     RoleName = "salesperson"
	RoleWarehouseKeeper RoleName = "warehouse_keeper"
	RoleWorkshopManager RoleName = "workshop_manager"
	RoleAdministrator   RoleName = "administrator"
)

// User represents an authenticated account.
type User struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Username  string `gorm:"uniqueIndex"`
	Name      string
	Password  string
	Role      RoleName `gorm:"type:varchar(32)"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MachineStatus tracks whether a machine can take production work.
type MachineStatus string

const (
	MachineActive      MachineStatus = "active"
	MachineMaintenance MachineStatus = "maintenance"
	MachineInactive    MachineStatus = "inactive"
)

// Machine is a production machine with a fixed number of stations.
type Machine struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	Number       string `gorm:"uniqueIndex"`
	Status       MachineStatus `gorm:"type:varchar(16)"`
	StationCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ColorCard is a named color reference products point at.
type ColorCard struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Name      string `gorm:"index"`
	HexCode   string `gorm:"type:varchar(9)"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BatchStatus is the production batch lifecycle state.
type BatchStatus string

const (
	BatchUnsubmitted BatchStatus = "unsubmitted"
	BatchPending     BatchStatus = "pending"
	BatchActive      BatchStatus = "active"
	BatchCompleted   BatchStatus = "completed"
	BatchCancelled   BatchStatus = "cancelled"
	BatchRejected    BatchStatus = "rejected"
)

// ProductionBatch is a scheduled unit of factory work on one machine,
// optionally tied to a target date and shift. A batch whose status is no
// longer unsubmitted is historical fact and must not be structurally
// mutated; TargetDate and Shift are both set or both nil (legacy batches
// carry neither).
type ProductionBatch struct {
	ID                          string `gorm:"type:uuid;primaryKey"`
	BatchNumber                 string `gorm:"uniqueIndex"`
	MachineID                   string `gorm:"type:uuid;index"`
	SubmitterID                 string `gorm:"type:uuid"`
	SubmitterName               string
	SubmittedAt                 time.Time
	Status                      BatchStatus   `gorm:"type:varchar(16);index"`
	TargetDate                  *time.Time    `gorm:"index"`
	Shift                       *cutoff.Shift `gorm:"type:varchar(16)"`
	AllowsColorModificationOnly bool
	Products                    []ProductConfig `gorm:"foreignKey:BatchID;constraint:OnDelete:CASCADE"`
	CreatedAt                   time.Time
	UpdatedAt                   time.Time
}

// IsShiftAware reports whether the batch carries full shift metadata.
func (b *ProductionBatch) IsShiftAware() bool {
	return b.TargetDate != nil && b.Shift != nil
}

// IsLegacy reports whether the batch predates shift scheduling entirely.
func (b *ProductionBatch) IsLegacy() bool {
	return b.TargetDate == nil && b.Shift == nil
}

// StationList stores the set of station indices a product occupies,
// serialized as a JSON array so all three database backends accept it.
type StationList []int

// Value implements driver.Valuer.
func (s StationList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]int(s))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (s *StationList) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("unsupported station list column type %T", value)
	}
}

// AsSet returns the occupied stations as a set.
func (s StationList) AsSet() map[int]bool {
	set := make(map[int]bool, len(s))
	for _, idx := range s {
		set[idx] = true
	}
	return set
}

// EqualSet compares two station lists as sets, ignoring order and duplicates.
func (s StationList) EqualSet(other StationList) bool {
	a, b := s.AsSet(), other.AsSet()
	if len(a) != len(b) {
		return false
	}
	for idx := range a {
		if !b[idx] {
			return false
		}
	}
	return true
}

// ProductConfig is one product entry inside a batch: a product name, a
// primary color reference and the stations it occupies on the machine.
type ProductConfig struct {
	ID               string `gorm:"type:uuid;primaryKey"`
	BatchID          string `gorm:"type:uuid;index"`
	ProductName      string `gorm:"index"`
	PrimaryColorID   string `gorm:"type:uuid"`
	OccupiedStations StationList `gorm:"type:text"`
	Position         int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// OutOfStockStatus tracks a customer out-of-stock request.
type OutOfStockStatus string

const (
	OutOfStockPending   OutOfStockStatus = "pending"
	OutOfStockCompleted OutOfStockStatus = "completed"
	OutOfStockReturned  OutOfStockStatus = "returned"
)

// CustomerOutOfStock records a customer's out-of-stock product request.
type CustomerOutOfStock struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	CustomerName string `gorm:"index"`
	ProductName  string `gorm:"index"`
	Quantity     int
	Status       OutOfStockStatus `gorm:"type:varchar(16);index"`
	RequesterID  string           `gorm:"type:uuid"`
	Notes        string           `gorm:"type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AuditLog records who did what to which entity.
type AuditLog struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	ActorID    string `gorm:"type:uuid;index"`
	ActorName  string
	Action     string `gorm:"type:varchar(64);index"`
	EntityType string `gorm:"type:varchar(32)"`
	EntityID   string `gorm:"type:uuid;index"`
	Details    string `gorm:"type:text"`
	CreatedAt  time.Time
}
