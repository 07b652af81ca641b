// Command entitydb manages users, their private photo shards, and shard
// upgrades from the command line.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"

	"github.com/arkilian/entitydb/internal/app"
	"github.com/arkilian/entitydb/internal/config"
	"github.com/arkilian/entitydb/internal/dao"
	"github.com/arkilian/entitydb/internal/migration"
	"github.com/arkilian/entitydb/internal/model"
)

var (
	version = "dev"
	commit  = "unknown"
)

// CLI defines the command-line interface for entitydb.
var CLI struct {
	Config  string `name:"config" short:"c" help:"Configuration file (YAML or JSON)" type:"existingfile"`
	DataDir string `name:"data-dir" short:"d" help:"Base directory for database files"`
	EnvFile string `name:"env-file" help:"Load environment variables from this file" default:".env"`
	Stats   bool   `name:"stats" help:"Print statement statistics after the command"`

	User    UserGroup  `cmd:"" help:"User operations on the primary database"`
	Photo   PhotoGroup `cmd:"" help:"Photo operations on the logged-in user's shard"`
	Migrate MigrateCmd `cmd:"" help:"Upgrade every user shard"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// UserGroup contains user operations.
type UserGroup struct {
	Add     UserAddCmd     `cmd:"" help:"Store a user without logging in"`
	Login   UserLoginCmd   `cmd:"" help:"Log a user in, logging everyone else out"`
	Current UserCurrentCmd `cmd:"" help:"Show the logged-in user"`
	List    UserListCmd    `cmd:"" help:"List stored users"`
	Update  UserUpdateCmd  `cmd:"" help:"Change a user's name or password"`
	Delete  UserDeleteCmd  `cmd:"" help:"Delete every row of a user"`
}

// PhotoGroup contains photo operations.
type PhotoGroup struct {
	Add  PhotoAddCmd  `cmd:"" help:"Store a photo for the logged-in user"`
	List PhotoListCmd `cmd:"" help:"List the logged-in user's photos"`
}

// env is bound into every command's Run method.
type env struct {
	ctx context.Context
	app *app.App
	out io.Writer
}

// UserAddCmd stores a user.
type UserAddCmd struct {
	ID   int32  `arg:"" help:"User id"`
	Name string `arg:"" help:"User name"`
	Pwd  string `name:"pwd" help:"Password"`
}

func (c *UserAddCmd) Run(e *env) error {
	users, err := e.app.Users(e.ctx)
	if err != nil {
		return err
	}
	u := &model.User{ID: &c.ID, Name: &c.Name, Status: int32Ptr(model.StatusLoggedOut)}
	if c.Pwd != "" {
		u.Pwd = &c.Pwd
	}
	rowID, err := users.BaseDao.Insert(e.ctx, u)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "stored user %d (row %d)\n", c.ID, rowID)
	return nil
}

// UserLoginCmd logs a user in.
type UserLoginCmd struct {
	ID   int32  `arg:"" help:"User id"`
	Name string `arg:"" help:"User name"`
	Pwd  string `name:"pwd" help:"Password"`
}

func (c *UserLoginCmd) Run(e *env) error {
	u := &model.User{ID: &c.ID, Name: &c.Name}
	if c.Pwd != "" {
		u.Pwd = &c.Pwd
	}
	if _, err := e.app.Login(e.ctx, u); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "user %d logged in\n", c.ID)
	return nil
}

// UserCurrentCmd shows the logged-in user.
type UserCurrentCmd struct{}

func (c *UserCurrentCmd) Run(e *env) error {
	users, err := e.app.Users(e.ctx)
	if err != nil {
		return err
	}
	u, err := users.CurrentActive(e.ctx)
	if err != nil {
		return err
	}
	if u == nil {
		fmt.Fprintln(e.out, "nobody is logged in")
		return nil
	}
	printUsers(e.out, []*model.User{u})
	return nil
}

// UserListCmd lists users.
type UserListCmd struct {
	Active bool `name:"active" help:"Only list the logged-in user"`
	Offset int  `name:"offset" help:"Rows to skip" default:"0"`
	Limit  int  `name:"limit" help:"Maximum rows to return (0 for all)" default:"0"`
}

func (c *UserListCmd) Run(e *env) error {
	users, err := e.app.Users(e.ctx)
	if err != nil {
		return err
	}
	var where *model.User
	if c.Active {
		where = &model.User{Status: int32Ptr(model.StatusActive)}
	}
	qo := dao.QueryOptions{OrderBy: `"u_id" ASC`}
	if c.Limit > 0 {
		qo.Offset, qo.Limit = &c.Offset, &c.Limit
	}
	all, err := users.QueryWith(e.ctx, where, qo)
	if err != nil {
		return err
	}
	printUsers(e.out, all)
	return nil
}

// UserUpdateCmd changes stored user fields.
type UserUpdateCmd struct {
	ID   int32  `arg:"" help:"User id"`
	Name string `name:"name" help:"New name"`
	Pwd  string `name:"pwd" help:"New password"`
}

func (c *UserUpdateCmd) Run(e *env) error {
	users, err := e.app.Users(e.ctx)
	if err != nil {
		return err
	}
	values := &model.User{}
	if c.Name != "" {
		values.Name = &c.Name
	}
	if c.Pwd != "" {
		values.Pwd = &c.Pwd
	}
	n, err := users.Update(e.ctx, values, &model.User{ID: &c.ID})
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "updated %d row(s)\n", n)
	return nil
}

// UserDeleteCmd deletes a user.
type UserDeleteCmd struct {
	ID int32 `arg:"" help:"User id"`
}

func (c *UserDeleteCmd) Run(e *env) error {
	users, err := e.app.Users(e.ctx)
	if err != nil {
		return err
	}
	n, err := users.Delete(e.ctx, &model.User{ID: &c.ID})
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "deleted %d row(s)\n", n)
	return nil
}

// PhotoAddCmd stores a photo.
type PhotoAddCmd struct {
	Path string `arg:"" help:"Photo location"`
	Time string `name:"time" help:"Capture time (defaults to now)"`
}

func (c *PhotoAddCmd) Run(e *env) error {
	photos, err := e.app.Photos(e.ctx)
	if err != nil {
		return err
	}
	taken := c.Time
	if taken == "" {
		taken = time.Now().Format("2006-01-02 15:04:05")
	}
	if _, err := photos.Insert(e.ctx, &model.Photo{Time: &taken, Path: &c.Path}); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "stored %s\n", c.Path)
	return nil
}

// PhotoListCmd lists photos.
type PhotoListCmd struct{}

func (c *PhotoListCmd) Run(e *env) error {
	photos, err := e.app.Photos(e.ctx)
	if err != nil {
		return err
	}
	all, err := photos.QueryWith(e.ctx, nil, dao.QueryOptions{OrderBy: `"time" ASC`})
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tPATH")
	for _, p := range all {
		fmt.Fprintf(w, "%s\t%s\n", deref(p.Time), deref(p.Path))
	}
	return w.Flush()
}

// MigrateCmd upgrades every user shard.
type MigrateCmd struct {
	Descriptor string `name:"descriptor" help:"Step descriptor (YAML or XML); defaults to migration.descriptor"`
	From       string `name:"from" help:"Current shard version; defaults to migration.current_version"`
	To         string `name:"to" help:"Target shard version; defaults to migration.target_version"`
}

func (c *MigrateCmd) Run(e *env) error {
	report, err := e.app.Migrate(e.ctx, app.MigrateRequest{Descriptor: c.Descriptor, From: c.From, To: c.To})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "run %s: %s -> %s\n", report.RunID, report.From, report.To)
	fmt.Fprintln(w, "SHARD\tSTATUS\tSNAPSHOT\tERROR")
	for _, res := range report.Results {
		errText := ""
		if res.Err != nil {
			errText = res.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", res.ID, res.Status, res.Snapshot, errText)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if n := report.Count(migration.StatusFailed); n > 0 {
		return fmt.Errorf("%d shard(s) failed to upgrade", n)
	}
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(e *env) error {
	fmt.Fprintf(e.out, "entitydb version %s (commit: %s)\n", version, commit)
	return nil
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("entitydb"),
		kong.Description("Entity storage over embedded SQLite with per-user shards"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	cfg, err := loadConfig(CLI.Config, CLI.DataDir, CLI.EnvFile)
	kctx.FatalIfErrorf(err)

	application, err := app.New(cfg)
	kctx.FatalIfErrorf(err)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := kctx.Run(&env{ctx: ctx, app: application, out: os.Stdout})
	if CLI.Stats {
		printStats(os.Stderr, application)
	}
	if err := application.Close(); err != nil {
		log.Printf("entitydb: [WARN] close failed: %v", err)
	}
	kctx.FatalIfErrorf(runErr)
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(configFile, dataDir, envFile string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	config.LoadFromEnv(cfg)

	// Command line flags have the highest priority
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	return cfg, nil
}

func printUsers(out io.Writer, users []*model.User) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS")
	for _, u := range users {
		status := "logged out"
		if u.Status != nil && *u.Status == model.StatusActive {
			status = "active"
		}
		id := ""
		if u.ID != nil {
			id = fmt.Sprint(*u.ID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", id, deref(u.Name), status)
	}
	w.Flush()
}

func printStats(out io.Writer, a *app.App) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tOPERATION\tCOUNT")
	for _, ts := range a.Stats().Tables() {
		ops := make([]string, 0, len(ts.Operations))
		for op := range ts.Operations {
			ops = append(ops, op)
		}
		sort.Strings(ops)
		for _, op := range ops {
			fmt.Fprintf(w, "%s\t%s\t%d\n", ts.Table, op, ts.Operations[op])
		}
	}
	if top := a.Stats().GetTopPredicates(5); len(top) > 0 {
		fmt.Fprintln(w, "\nTABLE\tPREDICATE\tUSES")
		for _, c := range top {
			fmt.Fprintf(w, "%s\t%s\t%d\n", c.Table, c.Column, c.Frequency)
		}
	}
	w.Flush()
}

func int32Ptr(v int32) *int32 { return &v }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
