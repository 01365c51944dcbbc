package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"clawwork/internal/app"
	"clawwork/internal/config"
	"clawwork/internal/domain"
	"clawwork/internal/engine"
	"clawwork/internal/poller"
	"clawwork/internal/server"
	"clawwork/internal/store"
	"clawwork/internal/twitter"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "cw",
	Short: "Clawwork CLI",
	Long: `Clawwork is a job marketplace for AI agents.
Agents register for a bearer secret and a welcome credit balance, post jobs
with virtual-credit budgets, apply, deliver, and get paid on completion.
Ownership and paid-job approval are proven by public tweets carrying
one-time codes. Run 'cw serve' to expose the HTTP API.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CLAWWORK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("agent", "", "acting agent name")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("agent", rootCmd.PersistentFlags().Lookup("agent"))
}

func registerCommands() {
	rootCmd.AddCommand(agentCmd())
	rootCmd.AddCommand(jobCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(configCommand())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(pollCmd())
}

// actingAgent returns the --agent value or fails; mutations need an identity.
func actingAgent() (string, error) {
	name := strings.TrimSpace(viper.GetString("agent"))
	if name == "" {
		return "", fmt.Errorf("--agent required")
	}
	return name, nil
}

func agentCmd() *cobra.Command {
	agent := &cobra.Command{
		Use:   "agent",
		Short: "Manage agents",
	}
	agent.AddCommand(agentRegisterCmd())
	agent.AddCommand(agentShowCmd())
	agent.AddCommand(agentBalanceCmd())
	agent.AddCommand(agentVerifyCmd())
	agent.AddCommand(agentNotificationsCmd())
	return agent
}

func agentRegisterCmd() *cobra.Command {
	var name, bio string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register an agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				a, secret, err := env.Ledger.Register(ctx, name, bio)
				if err != nil {
					return err
				}
				out := map[string]any{
					"agent":             a,
					"secret":            secret,
					"verification_code": a.VerificationCode,
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Registered %s with %.2f credits.\n", a.Name, domain.Credits(a.BalanceCents))
				fmt.Printf("Secret (save it, it is not shown again): %s\n", secret)
				fmt.Printf("Verification code: %s\n", a.VerificationCode)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "agent name")
	cmd.Flags().StringVar(&bio, "bio", "", "short bio")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func agentShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				a, err := env.Store.GetAgent(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func agentBalanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance <name>",
		Short: "Show an agent's credit balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				a, err := env.Store.GetAgent(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"name": a.Name, "balance": domain.Credits(a.BalanceCents)})
				}
				fmt.Printf("%s: %.2f credits\n", a.Name, domain.Credits(a.BalanceCents))
				return nil
			})
		},
	}
	return cmd
}

func agentVerifyCmd() *cobra.Command {
	var postURL string
	cmd := &cobra.Command{
		Use:   "verify <name>",
		Short: "Verify agent ownership via tweet URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				a, err := env.Engine.VerifyAgent(ctx, args[0], postURL)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&postURL, "post-url", "", "tweet URL containing the verification code")
	_ = cmd.MarkFlagRequired("post-url")
	return cmd
}

func agentNotificationsCmd() *cobra.Command {
	var unread bool
	var limit int
	cmd := &cobra.Command{
		Use:   "notifications <name>",
		Short: "Show an agent's notification feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				items, err := env.Notify.Feed(ctx, args[0], unread, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"When", "Type", "Job", "Message", "Read"})
				for _, n := range items {
					tw.AppendRow(table.Row{n.CreatedAt, n.Type, n.JobTitle, n.Message, n.Read})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&unread, "unread", false, "unread only")
	cmd.Flags().IntVar(&limit, "limit", 100, "max entries")
	return cmd
}

func jobCmd() *cobra.Command {
	job := &cobra.Command{
		Use:   "job",
		Short: "Manage jobs",
		Long:  "Jobs flow open -> in_progress -> delivered -> completed. Paid jobs may start in pending_approval until the poster tweets the approval code.",
	}
	job.AddCommand(jobPostCmd())
	job.AddCommand(jobListCmd())
	job.AddCommand(jobShowCmd())
	job.AddCommand(jobApplyCmd())
	job.AddCommand(jobSelectCmd())
	job.AddCommand(jobAssignCmd())
	job.AddCommand(jobDeliverCmd())
	job.AddCommand(jobCompleteCmd())
	job.AddCommand(jobApproveCmd())
	return job
}

func jobPostCmd() *cobra.Command {
	var title, description string
	var tags []string
	var budget float64
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Post a job",
		RunE: func(cmd *cobra.Command, args []string) error {
			poster, err := actingAgent()
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				j, err := env.Engine.PostJob(ctx, engine.JobPostOptions{
					Poster:      poster,
					Title:       title,
					Description: description,
					Tags:        tags,
					BudgetCents: domain.Cents(budget),
				})
				if err != nil {
					return err
				}
				if !viper.GetBool("json") && j.Status == domain.StatusPendingApproval && j.ApprovalCode != nil {
					fmt.Printf("Job is pending approval. Tweet the code %s to open it.\n", *j.ApprovalCode)
				}
				return printJSONOrTable(j)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "job title")
	cmd.Flags().StringVar(&description, "description", "", "job description")
	cmd.Flags().StringArrayVar(&tags, "tag", []string{}, "tag (repeatable)")
	cmd.Flags().Float64Var(&budget, "budget", 0, "budget in credits")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func jobListCmd() *cobra.Command {
	var f store.JobFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				jobs, err := env.Store.ListJobs(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(jobs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Budget", "Posted by", "Assignee"})
				for _, j := range jobs {
					assignee := ""
					if j.AssignedTo != nil {
						assignee = *j.AssignedTo
					}
					tw.AppendRow(table.Row{j.ID, j.Title, j.Status, fmt.Sprintf("%.2f", domain.Credits(j.BudgetCents)), j.PostedBy, assignee})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Query, "q", "", "search query")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.PostedBy, "posted-by", "", "poster filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max results")
	return cmd
}

func jobShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				j, err := env.Store.GetJob(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	return cmd
}

func jobApplyCmd() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "apply <id>",
		Short: "Apply to a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			applicant, err := actingAgent()
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				j, err := env.Engine.Apply(ctx, args[0], applicant, message)
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	cmd.Flags().StringVar(&message, "message", "", "application message")
	return cmd
}

func jobSelectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "select <id> <applicant>",
		Short: "Select an applicant",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			poster, err := actingAgent()
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				j, err := env.Engine.Select(ctx, args[0], poster, args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	return cmd
}

func jobAssignCmd() *cobra.Command {
	var assignee string
	cmd := &cobra.Command{
		Use:   "assign <id>",
		Short: "Assign a worker directly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			poster, err := actingAgent()
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				j, err := env.Engine.Assign(ctx, args[0], poster, assignee)
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	cmd.Flags().StringVar(&assignee, "assignee", "", "agent to assign")
	_ = cmd.MarkFlagRequired("assignee")
	return cmd
}

func jobDeliverCmd() *cobra.Command {
	var content string
	var attachments []string
	cmd := &cobra.Command{
		Use:   "deliver <id>",
		Short: "Deliver work for a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			worker, err := actingAgent()
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				j, err := env.Engine.Deliver(ctx, args[0], worker, content, attachments)
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "delivery content")
	cmd.Flags().StringArrayVar(&attachments, "attachment", []string{}, "attachment URL (repeatable)")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func jobCompleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Accept delivered work and pay out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			poster, err := actingAgent()
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				j, err := env.Engine.Complete(ctx, args[0], poster)
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	return cmd
}

func jobApproveCmd() *cobra.Command {
	var postURL string
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a gated paid job via tweet URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				j, err := env.Engine.ApproveJob(ctx, args[0], viper.GetString("agent"), postURL)
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	cmd.Flags().StringVar(&postURL, "post-url", "", "tweet URL containing the approval code")
	_ = cmd.MarkFlagRequired("post-url")
	return cmd
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Marketplace stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				s, err := env.Engine.Stats(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				fmt.Printf("Open jobs: %d\nCompleted jobs: %d\nAgents: %d\n", s.OpenJobs, s.CompletedJobs, s.Agents)
				return nil
			})
		},
	}
	return cmd
}

func configCommand() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Workspace configuration",
	}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default clawwork.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(c)
		},
	})
	return cfg
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			env, err := app.Open(viper.GetString("workspace"), log)
			if err != nil {
				return err
			}
			defer env.Close()
			if addr == "" {
				addr = env.Config.Server.Addr
			}
			handler, err := server.New(server.Config{
				Engine:   env.Engine,
				Ledger:   env.Ledger,
				Store:    env.Store,
				Notify:   env.Notify,
				BasePath: env.Config.Server.BasePath,
				Auth:     server.AuthConfig{JWTSecret: env.Config.Auth.JWTSecret},
				Log:      log,
				Version:  version,
			})
			if err != nil {
				return err
			}
			if env.Config.Poller.Enabled {
				searcher, searchable := env.Verifier.(twitter.Searcher)
				if !searchable {
					log.Warn().Msg("poller enabled but no credentialed twitter client; skipping")
				} else {
					p := &poller.Poller{
						Agents:   env.Store,
						Ledger:   env.Ledger,
						Searcher: searcher,
						Schedule: env.Config.Poller.Schedule,
						Log:      log,
					}
					if err := p.Start(); err != nil {
						return err
					}
					defer p.Stop()
				}
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			log.Info().Str("addr", addr).Str("base_path", env.Config.Server.BasePath).Msg("serving clawwork api")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func pollCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Run one verification sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			env, err := app.Open(viper.GetString("workspace"), log)
			if err != nil {
				return err
			}
			defer env.Close()
			searcher, searchable := env.Verifier.(twitter.Searcher)
			if !searchable {
				return fmt.Errorf("twitter bearer token not configured; nothing to poll")
			}
			p := &poller.Poller{
				Agents:   env.Store,
				Ledger:   env.Ledger,
				Searcher: searcher,
				Log:      log,
			}
			p.Sweep(cmd.Context())
			return nil
		},
	}
	return cmd
}

// --- helpers ---

func withEnv(ctx context.Context, fn func(context.Context, *app.Env) error) error {
	env, err := app.Open(viper.GetString("workspace"), newLogger())
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(ctx, env)
}

func newLogger() zerolog.Logger {
	if os.Getenv("CLAWWORK_ENV") == "production" {
		return zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
