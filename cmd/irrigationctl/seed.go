package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/Yogesh-MG/Iotfarming/internal/audit"
	"github.com/Yogesh-MG/Iotfarming/internal/auth"
	"github.com/Yogesh-MG/Iotfarming/internal/device"
	"github.com/Yogesh-MG/Iotfarming/internal/infrastructure/database"
	"github.com/Yogesh-MG/Iotfarming/internal/provision"
)

// Demo moisture readings are drawn from this range.
const (
	seedMoistureMin = 20.0
	seedMoistureMax = 80.0
)

type seedOptions struct {
	fresh         bool
	users         int
	readings      int
	commands      int
	password      string
	adminPassword string
}

// runSeed fills the database with an admin, demo growers with one device
// each, readings and manual commands, then rebuilds every seeded status.
// Existing accounts and devices are reused, so seeding twice only adds
// readings and commands.
func runSeed(ctx context.Context, e *env, args []string, out io.Writer) error {
	var opts seedOptions
	fset := flag.NewFlagSet("seed", flag.ContinueOnError)
	fset.SetOutput(out)
	fset.BoolVar(&opts.fresh, "fresh", false, "delete existing data (except admins) first")
	fset.IntVar(&opts.users, "users", 3, "demo users, one device each")
	fset.IntVar(&opts.readings, "readings", 10, "readings per device")
	fset.IntVar(&opts.commands, "commands", 3, "manual commands per device")
	fset.StringVar(&opts.password, "password", "test1234", "password for demo users")
	fset.StringVar(&opts.adminPassword, "admin-password", "admin123", "password for a newly created admin")
	if err := fset.Parse(args); err != nil {
		return err
	}

	if opts.fresh {
		if err := clearData(ctx, e.db.DB); err != nil {
			return err
		}
		fmt.Fprintln(out, "cleared existing data")
	}

	users := auth.NewUserRepository(e.db.DB)
	prov := provision.New(e.db.DB, e.service, e.registry)

	adminID, err := ensureAdmin(ctx, users, prov, opts.adminPassword, out)
	if err != nil {
		return err
	}

	deviceIDs := make([]string, 0, opts.users)
	for i := 1; i <= opts.users; i++ {
		id, err := ensureGrower(ctx, users, prov, e.registry, i, opts.password, adminID, out)
		if err != nil {
			return err
		}
		deviceIDs = append(deviceIDs, id)
	}

	for _, id := range deviceIDs {
		for range opts.readings {
			moisture := seedMoistureMin + rand.Float64()*(seedMoistureMax-seedMoistureMin) //nolint:gosec // demo data
			if _, err := e.service.SubmitReading(ctx, id, moisture, nil); err != nil {
				return fmt.Errorf("seeding reading for %s: %w", id, err)
			}
		}
		for range opts.commands {
			if _, err := e.service.ToggleManualPump(ctx, id, rand.IntN(2) == 1); err != nil { //nolint:gosec // demo data
				return fmt.Errorf("seeding command for %s: %w", id, err)
			}
		}
		fmt.Fprintf(out, "added %d readings and %d commands for %s\n", opts.readings, opts.commands, id)
	}

	if _, err := rebuildAll(ctx, e, deviceIDs, defaultRebuildWorkers); err != nil {
		return err
	}
	fmt.Fprintf(out, "seeding complete: %d device(s)\n", len(deviceIDs))
	return nil
}

func ensureAdmin(ctx context.Context, users auth.UserRepository, prov *provision.Provisioner, password string, out io.Writer) (string, error) {
	existing, err := users.GetByUsername(ctx, auth.SeedAdminUsername)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, auth.ErrUserNotFound) {
		return "", fmt.Errorf("looking up admin: %w", err)
	}

	res, err := prov.CreateUser(ctx, provision.NewUser{
		Username:    auth.SeedAdminUsername,
		Password:    password,
		DisplayName: "Administrator",
		Role:        auth.RoleAdmin,
	}, nil, "", audit.SourceCLI)
	if err != nil {
		return "", fmt.Errorf("creating admin: %w", err)
	}
	fmt.Fprintf(out, "created admin: %s / %s\n", auth.SeedAdminUsername, password)
	return res.User.ID, nil
}

// ensureGrower returns the device ID of demo user n, creating the user and
// device as needed. New API keys are printed once.
func ensureGrower(ctx context.Context, users auth.UserRepository, prov *provision.Provisioner, registry *device.Registry, n int, password, adminID string, out io.Writer) (string, error) {
	username := fmt.Sprintf("user%d", n)
	dev := provision.NewDevice{
		Name:       fmt.Sprintf("Smart Irrigation Device %d", n),
		HardwareID: fmt.Sprintf("esp32-%03d", n),
	}

	existing, err := users.GetByUsername(ctx, username)
	switch {
	case err == nil:
		if d, derr := registry.OwnerDevice(ctx, existing.ID); derr == nil {
			return d.ID, nil
		} else if !errors.Is(derr, device.ErrDeviceNotFound) {
			return "", fmt.Errorf("looking up device for %s: %w", username, derr)
		}
		res, err := prov.CreateDevice(ctx, existing.ID, dev, adminID, audit.SourceCLI)
		if err != nil {
			return "", fmt.Errorf("creating device for %s: %w", username, err)
		}
		fmt.Fprintf(out, "created device %s for %s, api key %s\n", dev.HardwareID, username, res.APIKey)
		return res.Device.ID, nil

	case errors.Is(err, auth.ErrUserNotFound):
		res, err := prov.CreateUser(ctx, provision.NewUser{
			Username: username,
			Password: password,
			Email:    username + "@example.com",
		}, &dev, adminID, audit.SourceCLI)
		if err != nil {
			return "", fmt.Errorf("creating %s: %w", username, err)
		}
		fmt.Fprintf(out, "created user %s with device %s, api key %s\n", username, dev.HardwareID, res.APIKey)
		return res.Device.ID, nil

	default:
		return "", fmt.Errorf("looking up %s: %w", username, err)
	}
}

// clearData removes everything except admin accounts, children first.
func clearData(ctx context.Context, db *sql.DB) error {
	return database.RunInTx(ctx, db, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM commands`,
			`DELETE FROM readings`,
			`DELETE FROM current_status`,
			`DELETE FROM devices`,
			`DELETE FROM audit_logs`,
			`DELETE FROM users WHERE role != 'admin'`,
		} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("clearing data (%s): %w", stmt, err)
			}
		}
		return nil
	})
}
