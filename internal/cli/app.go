package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/dispense/internal/audit"
	"github.com/roach88/dispense/internal/auth"
	"github.com/roach88/dispense/internal/channel"
	"github.com/roach88/dispense/internal/config"
	"github.com/roach88/dispense/internal/engine"
	"github.com/roach88/dispense/internal/store"
)

// app is the wired dependency graph shared by the operational commands.
type app struct {
	env    config.Env
	logger *slog.Logger
	policy config.Policy
	store  *store.Store
	shadow *channel.Shadow
	engine *engine.Engine

	auditFile *audit.FileSink
}

// configError marks failures to read the environment or the policy file.
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

// openApp loads configuration and opens the store. Flags in opts override
// the DISPENSE_* environment. Diagnostics are logged to logOut.
func openApp(opts *RootOptions, logOut io.Writer) (*app, error) {
	env, err := config.LoadEnv()
	if err != nil {
		return nil, &configError{err}
	}

	level, err := env.SlogLevel()
	if err != nil {
		return nil, &configError{err}
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))

	policy := config.DefaultPolicy()
	policyPath := env.PolicyFile
	if opts.Policy != "" {
		policyPath = opts.Policy
	}
	if policyPath != "" {
		policy, err = config.LoadPolicy(policyPath)
		if err != nil {
			return nil, &configError{err}
		}
	}

	dbPath := env.DBPath
	if opts.DB != "" {
		dbPath = opts.DB
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}

	a := &app{
		env:    env,
		logger: logger,
		policy: policy,
		store:  st,
	}

	clock := engine.SystemClock{}
	a.shadow = channel.New(st, channel.WithNow(clock.Now))

	sinks := []audit.Sink{audit.NewStoreSink(st)}
	if env.AuditFile != "" {
		a.auditFile = audit.NewFileSink(env.AuditFile, env.AuditMaxSizeMB, 3)
		sinks = append(sinks, a.auditFile)
	}
	auditLog := audit.BestEffort(audit.New(audit.Multi(sinks...)), logger)

	a.engine = engine.New(st, a.shadow, auditLog,
		engine.WithClock(clock),
		engine.WithPolicy(policy),
		engine.WithLogger(logger),
	)

	logger.Debug("app opened",
		"db", dbPath,
		"policy", policyPath,
		"command", policy.Command,
		"audit_file", env.AuditFile)
	return a, nil
}

// verifier returns the token verifier configured by DISPENSE_JWT_SECRET.
func (a *app) verifier() (*auth.Verifier, error) {
	if a.env.JWTSecret == "" {
		return nil, errors.New("DISPENSE_JWT_SECRET is not set")
	}
	return auth.NewVerifier(a.env.JWTSecret)
}

// Close releases the store and the audit file.
func (a *app) Close() error {
	var errs []error
	if a.auditFile != nil {
		if err := a.auditFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close audit file: %w", err))
		}
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// withApp opens the app, runs fn, and closes the app. Open failures are
// reported through f as command errors.
func withApp(opts *RootOptions, f *OutputFormatter, fn func(a *app) error) error {
	a, err := openApp(opts, f.GetErrWriter())
	if err != nil {
		var cfgErr *configError
		if errors.As(err, &cfgErr) {
			return f.Fail(ExitCommandError, ErrCodeConfig, "load configuration", cfgErr.err)
		}
		return f.Fail(ExitCommandError, ErrCodeStore, "open database", err)
	}
	defer a.Close()
	return fn(a)
}
