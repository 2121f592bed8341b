package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/hermesdl/hermesctl/internal/api"
	"github.com/hermesdl/hermesctl/internal/auth"
	"github.com/hermesdl/hermesctl/internal/registry"
	"github.com/hermesdl/hermesctl/internal/repositories"
	"github.com/hermesdl/hermesctl/internal/shared"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config *shared.Config
	client *api.Client
	creds  *auth.Store
	logger *log.Logger
	output io.Writer

	reg     *registry.Registry
	history *repositories.HistoryRepository
	db      *sql.DB
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config   *shared.Config
	Client   *api.Client
	Creds    *auth.Store
	Registry *registry.Registry
	History  *repositories.HistoryRepository
	Logger   *log.Logger
	Output   io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:  opts.Config,
		client:  opts.Client,
		creds:   opts.Creds,
		reg:     opts.Registry,
		history: opts.History,
		logger:  opts.Logger,
		output:  opts.Output,
	}
}

// registry returns the shared tracked-set handle, opening it on first use.
func (r *Runner) registry() (*registry.Registry, error) {
	if r.reg != nil {
		return r.reg, nil
	}
	reg, err := registry.New(r.config.StateDir(), r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open tracked set: %w", err)
	}
	r.reg = reg
	return reg, nil
}

// historyRepo returns the local history repository, opening the database on
// first use and running any pending migrations.
func (r *Runner) historyRepo() (*repositories.HistoryRepository, error) {
	if r.history != nil {
		return r.history, nil
	}

	db, err := shared.NewDatabase(r.config.HistoryDBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}

	r.db = db
	r.history = repositories.NewHistoryRepository(db)
	return r.history, nil
}

// Close releases any lazily opened resources.
func (r *Runner) Close() {
	if r.db != nil {
		r.db.Close()
		r.db = nil
	}
	if r.reg != nil {
		r.reg.Close()
		r.reg = nil
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, getCommand, cancelCommand, trackCommand, queueCommand, statusCommand, historyCommand, watchCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
