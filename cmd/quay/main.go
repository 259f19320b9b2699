package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/quayside/console/pkg/deploy/client"
	"github.com/quayside/console/pkg/token"
)

type cliConfig struct {
	DeployAPIURL string `json:"deploy_api_url"`
	AccessToken  string `json:"access_token"`
}

var buildVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "auth":
		err = commandAuth(args)
	case "resources":
		err = commandResources(args)
	case "resource":
		err = commandResource(args)
	case "domain":
		err = commandDomain(args)
	case "project":
		err = commandProject(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func commandAuth(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: quay auth [set|show]")
	}
	switch args[0] {
	case "set":
		return authSet(args[1:])
	case "show":
		return authShow(args[1:])
	default:
		return fmt.Errorf("unknown auth command: %s", args[0])
	}
}

func authSet(args []string) error {
	fs := flag.NewFlagSet("auth set", flag.ExitOnError)
	raw := fs.String("token", "", "Access token (supply to avoid prompt)")
	apiBase := fs.String("api", "", "Deployment service URL (default http://localhost:7100)")
	fs.Parse(args)

	secret := strings.TrimSpace(*raw)
	if secret == "" {
		fmt.Print("Token: ")
		bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Print("\n")
		if err != nil {
			return fmt.Errorf("read token: %w", err)
		}
		secret = strings.TrimSpace(string(bytes))
	}
	if secret == "" {
		return errors.New("a token is required")
	}

	cfg, _ := loadConfig()
	if strings.TrimSpace(*apiBase) != "" {
		cfg.DeployAPIURL = *apiBase
	} else if cfg.DeployAPIURL == "" {
		cfg.DeployAPIURL = "http://localhost:7100"
	}
	cfg.AccessToken = secret
	if err := saveConfig(cfg); err != nil {
		return err
	}
	warnIfExpired(secret)
	fmt.Println("token saved")
	return nil
}

func authShow(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		fmt.Println("no token configured")
		return nil
	}
	info, err := token.Inspect(cfg.AccessToken)
	if err != nil {
		fmt.Println("token configured (opaque)")
		return nil
	}
	fmt.Printf("subject: %s\n", info.Subject)
	if !info.ExpiresAt.IsZero() {
		fmt.Printf("expires: %s\n", info.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

func commandResources(args []string) error {
	fs := flag.NewFlagSet("resources", flag.ExitOnError)
	projectID := fs.String("project", "", "Project identifier")
	fs.Parse(args)

	if strings.TrimSpace(*projectID) == "" {
		return errors.New("--project is required")
	}
	cli, accessToken, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	for _, segment := range []string{"databases", "backends", "frontends"} {
		rows, err := listSegment(ctx, cli, accessToken, *projectID, segment)
		if err != nil {
			return fmt.Errorf("list %s: %w", segment, err)
		}
		for _, row := range rows {
			fmt.Printf("%s\t%s\t%s\t%s\n", row.ID, row.Kind, row.Name, row.Status)
		}
	}
	return nil
}

type resourceRow struct {
	ID     string
	Kind   string
	Name   string
	Status string
}

func listSegment(ctx context.Context, cli *client.Client, accessToken, projectID, segment string) ([]resourceRow, error) {
	var (
		rows []resourceRow
		err  error
	)
	switch segment {
	case "databases":
		list, lerr := cli.ListDatabases(ctx, accessToken, projectID)
		err = lerr
		for _, res := range list {
			rows = append(rows, resourceRow{ID: res.ID, Kind: string(res.Kind), Name: res.Name, Status: string(res.Status)})
		}
	case "backends":
		list, lerr := cli.ListBackends(ctx, accessToken, projectID)
		err = lerr
		for _, res := range list {
			rows = append(rows, resourceRow{ID: res.ID, Kind: string(res.Kind), Name: res.Name, Status: string(res.Status)})
		}
	case "frontends":
		list, lerr := cli.ListFrontends(ctx, accessToken, projectID)
		err = lerr
		for _, res := range list {
			rows = append(rows, resourceRow{ID: res.ID, Kind: string(res.Kind), Name: res.Name, Status: string(res.Status)})
		}
	}
	return rows, err
}

func commandResource(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: quay resource [start|stop|delete]")
	}
	sub := args[0]
	switch sub {
	case "start", "stop", "delete":
		return resourceOp(sub, args[1:])
	default:
		return fmt.Errorf("unknown resource command: %s", sub)
	}
}

func resourceOp(op string, args []string) error {
	fs := flag.NewFlagSet("resource "+op, flag.ExitOnError)
	projectID := fs.String("project", "", "Project identifier")
	resourceID := fs.String("id", "", "Resource identifier")
	fs.Parse(args)

	if strings.TrimSpace(*projectID) == "" {
		return errors.New("--project is required")
	}
	if strings.TrimSpace(*resourceID) == "" {
		return errors.New("--id is required")
	}
	cli, accessToken, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	switch op {
	case "start":
		err = cli.StartResource(ctx, accessToken, *projectID, *resourceID)
	case "stop":
		err = cli.StopResource(ctx, accessToken, *projectID, *resourceID)
	case "delete":
		err = cli.DeleteResource(ctx, accessToken, *projectID, *resourceID)
	}
	if err != nil {
		return err
	}
	fmt.Printf("resource %s requested\n", op)
	return nil
}

func commandDomain(args []string) error {
	if len(args) == 0 || args[0] != "check" {
		return errors.New("usage: quay domain check --label <label>")
	}
	fs := flag.NewFlagSet("domain check", flag.ExitOnError)
	label := fs.String("label", "", "Candidate domain label")
	fs.Parse(args[1:])

	if strings.TrimSpace(*label) == "" {
		return errors.New("--label is required")
	}
	cli, accessToken, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	check, err := cli.CheckDomain(ctx, accessToken, *label)
	if err != nil {
		// An unreachable checker means "unknown", not "taken".
		fmt.Printf("availability unknown: %v\n", err)
		return nil
	}
	if check.Exists {
		msg := check.Message
		if msg == "" {
			msg = "label is already in use"
		}
		fmt.Printf("taken: %s\n", msg)
		return nil
	}
	fmt.Println("available")
	return nil
}

func commandProject(args []string) error {
	if len(args) == 0 || args[0] != "delete" {
		return errors.New("usage: quay project delete --project <project-id>")
	}
	fs := flag.NewFlagSet("project delete", flag.ExitOnError)
	projectID := fs.String("project", "", "Project identifier")
	fs.Parse(args[1:])

	if strings.TrimSpace(*projectID) == "" {
		return errors.New("--project is required")
	}
	cli, accessToken, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := cli.DeleteProject(ctx, accessToken, *projectID); err != nil {
		return err
	}
	fmt.Println("project deleted")
	return nil
}

func newClient() (*client.Client, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	accessToken := strings.TrimSpace(os.Getenv("QUAY_TOKEN"))
	if accessToken == "" {
		accessToken = strings.TrimSpace(cfg.AccessToken)
	}
	if accessToken == "" {
		return nil, "", errors.New("please configure a token first using 'quay auth set'")
	}
	warnIfExpired(accessToken)
	cli, err := client.New(cfg.DeployAPIURL)
	if err != nil {
		return nil, "", err
	}
	return cli, accessToken, nil
}

func warnIfExpired(accessToken string) {
	if token.Expired(accessToken, time.Now()) {
		fmt.Fprintln(os.Stderr, "warning: access token looks expired; requests will likely be rejected")
	}
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{DeployAPIURL: "http://localhost:7100"}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	if cfg.DeployAPIURL == "" {
		cfg.DeployAPIURL = "http://localhost:7100"
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "quay", "config.json"), nil
}

func printUsage() {
	fmt.Printf("quay CLI %s\n\n", buildVersion)
	fmt.Print(`Usage:
	quay auth set [--token <token>] [--api http://localhost:7100]
	quay auth show
	quay resources --project <project-id>
	quay resource start --project <project-id> --id <resource-id>
	quay resource stop --project <project-id> --id <resource-id>
	quay resource delete --project <project-id> --id <resource-id>
	quay domain check --label <label>
	quay project delete --project <project-id>
	quay version
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
