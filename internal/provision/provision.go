// Package provision creates accounts and field devices.
//
// A user, their optional device, the device's initial CurrentStatus and the
// audit entry are written in one transaction: either the grower can log in
// and see a working dashboard, or nothing was created.
package provision

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Yogesh-MG/Iotfarming/internal/audit"
	"github.com/Yogesh-MG/Iotfarming/internal/auth"
	"github.com/Yogesh-MG/Iotfarming/internal/device"
	"github.com/Yogesh-MG/Iotfarming/internal/infrastructure/database"
	"github.com/Yogesh-MG/Iotfarming/internal/irrigation"
)

// NewUser describes an account to create.
type NewUser struct {
	Username    string
	Password    string
	DisplayName string
	Email       string
	Role        auth.Role // defaults to auth.RoleUser
}

// NewDevice describes a field unit to register.
type NewDevice struct {
	Name       string
	HardwareID string
}

// Result holds what was created. APIKey is the raw device key; it is only
// available here.
type Result struct {
	User   *auth.User                `json:"user,omitempty"`
	Device *device.Device            `json:"device,omitempty"`
	APIKey string                    `json:"api_key,omitempty"`
	Status *irrigation.CurrentStatus `json:"status,omitempty"`
}

// Invalidator drops cached devices. *device.Registry implements it.
type Invalidator interface {
	Invalidate(id string)
}

// Provisioner writes users and devices transactionally.
type Provisioner struct {
	db      *sql.DB
	users   *auth.SQLiteUserRepository
	devices *device.SQLiteRepository
	store   *irrigation.SQLiteStore
	audit   *audit.SQLiteRepository
	service *irrigation.Service
	cache   Invalidator
}

// New creates a provisioner over db. cache may be nil.
func New(db *sql.DB, service *irrigation.Service, cache Invalidator) *Provisioner {
	return &Provisioner{
		db:      db,
		users:   auth.NewUserRepository(db),
		devices: device.NewSQLiteRepository(db),
		store:   irrigation.NewSQLiteStore(db),
		audit:   audit.NewSQLiteRepository(db),
		service: service,
		cache:   cache,
	}
}

// CreateUser creates an account and, when dev is non-nil, a device owned by
// it. actorID is the admin recorded in the audit trail.
func (p *Provisioner) CreateUser(ctx context.Context, u NewUser, dev *NewDevice, actorID, source string) (*Result, error) {
	if err := auth.ValidatePassword(u.Password); err != nil {
		return nil, err
	}
	if u.Role == "" {
		u.Role = auth.RoleUser
	}
	hash, err := auth.HashPassword(u.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &auth.User{
		Username:     u.Username,
		DisplayName:  u.DisplayName,
		Email:        u.Email,
		PasswordHash: hash,
		Role:         u.Role,
		IsActive:     true,
		CreatedBy:    actorID,
	}

	res := &Result{User: user}
	err = database.RunInTx(ctx, p.db, func(tx *sql.Tx) error {
		if err := p.users.WithTx(tx).Create(ctx, user); err != nil {
			return err
		}
		if err := p.audit.WithTx(tx).Create(ctx, &audit.AuditLog{
			Action:     audit.ActionCreate,
			EntityType: audit.EntityUser,
			EntityID:   user.ID,
			UserID:     actorID,
			Source:     source,
			Details:    map[string]any{"username": user.Username, "role": string(user.Role)},
		}); err != nil {
			return err
		}
		if dev == nil {
			return nil
		}
		return p.createDevice(ctx, tx, user.ID, *dev, actorID, source, res)
	})
	if err != nil {
		return nil, err
	}
	p.invalidate(res)
	return res, nil
}

// CreateDevice registers a device for an existing user.
func (p *Provisioner) CreateDevice(ctx context.Context, ownerID string, dev NewDevice, actorID, source string) (*Result, error) {
	res := &Result{}
	err := database.RunInTx(ctx, p.db, func(tx *sql.Tx) error {
		return p.createDevice(ctx, tx, ownerID, dev, actorID, source, res)
	})
	if err != nil {
		return nil, err
	}
	p.invalidate(res)
	return res, nil
}

func (p *Provisioner) createDevice(ctx context.Context, tx *sql.Tx, ownerID string, nd NewDevice, actorID, source string, res *Result) error {
	d := &device.Device{
		OwnerID:    ownerID,
		Name:       nd.Name,
		HardwareID: nd.HardwareID,
		IsActive:   true,
	}
	raw, err := device.AssignNewAPIKey(d)
	if err != nil {
		return err
	}
	if err := p.devices.WithTx(tx).Create(ctx, d); err != nil {
		return err
	}

	status, err := p.service.InitializeStatus(ctx, p.store.WithTx(tx), d.ID)
	if err != nil {
		return fmt.Errorf("initialising status: %w", err)
	}

	if err := p.audit.WithTx(tx).Create(ctx, &audit.AuditLog{
		Action:     audit.ActionCreate,
		EntityType: audit.EntityDevice,
		EntityID:   d.ID,
		UserID:     actorID,
		Source:     source,
		Details: map[string]any{
			"owner_id":    ownerID,
			"hardware_id": d.HardwareID,
			"key_prefix":  device.KeyPrefix(raw),
		},
	}); err != nil {
		return err
	}

	res.Device = d
	res.APIKey = raw
	res.Status = status
	return nil
}

func (p *Provisioner) invalidate(res *Result) {
	if p.cache != nil && res.Device != nil {
		p.cache.Invalidate(res.Device.ID)
	}
}
