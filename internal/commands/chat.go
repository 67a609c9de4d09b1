package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/riskpilot-core/server/internal/agent/graph"
	"github.com/riskpilot-core/server/internal/agent/model"
	"github.com/riskpilot-core/server/internal/store"
	"github.com/riskpilot-core/server/internal/vector"
)

var chatFlags struct {
	user     string
	org      string
	location string
	domain   string
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive console session against a local store",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context())
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatFlags.user, "user", "local", "tenant id for the session")
	chatCmd.Flags().StringVar(&chatFlags.org, "org", "", "organization name")
	chatCmd.Flags().StringVar(&chatFlags.location, "location", "", "organization location")
	chatCmd.Flags().StringVar(&chatFlags.domain, "domain", "", "business domain")
}

func runChat(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.OpenSQLite(cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("open sqlite store: %w", err)
	}
	defer st.Close()

	index := vector.NewMemoryIndex(vector.NewHashEmbedder(256))
	if err := seedKnowledge(ctx, index); err != nil {
		return fmt.Errorf("seed knowledge base: %w", err)
	}

	deps, err := buildDeps(ctx, cfg, st, index)
	if err != nil {
		return err
	}

	// Console sessions live and die with the process, no Redis needed.
	runner, err := graph.NewRunner(ctx, deps, newLocalRepo(), graph.Config{})
	if err != nil {
		return fmt.Errorf("build dispatch graph: %w", err)
	}

	sessionID := uuid.NewString()
	fmt.Println("Hi! I'm your ISO 27001 risk and compliance assistant.")
	fmt.Println("Ask about risks, controls, audits, or the standard. Type 'exit' to quit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			continue
		}
		if message == "exit" || message == "quit" {
			return nil
		}

		res, err := runner.Run(ctx, model.TurnInput{
			SessionID: sessionID,
			Message:   message,
			User: model.UserData{
				UserID:           chatFlags.user,
				OrganizationName: chatFlags.org,
				Location:         chatFlags.location,
				Domain:           chatFlags.domain,
			},
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		fmt.Println(res.Response)
	}
}

// localRepo keeps conversation state in memory for console sessions.
type localRepo struct {
	mu        sync.Mutex
	histories map[string][]model.Exchange
	snaps     map[string]model.SessionSnapshot
}

func newLocalRepo() *localRepo {
	return &localRepo{
		histories: map[string][]model.Exchange{},
		snaps:     map[string]model.SessionSnapshot{},
	}
}

func (r *localRepo) AddExchange(_ context.Context, id string, ex model.Exchange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.histories[id] = append(r.histories[id], ex)
	return nil
}

func (r *localRepo) LoadHistory(_ context.Context, id string) ([]model.Exchange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Exchange(nil), r.histories[id]...), nil
}

func (r *localRepo) LoadSnapshot(_ context.Context, id string) (model.SessionSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if snap, ok := r.snaps[id]; ok {
		return snap, nil
	}
	return model.SessionSnapshot{Context: map[string]any{}}, nil
}

func (r *localRepo) SaveSnapshot(_ context.Context, id string, snap model.SessionSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps[id] = snap
	return nil
}

func (r *localRepo) ClearSession(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.histories, id)
	delete(r.snaps, id)
	return nil
}
