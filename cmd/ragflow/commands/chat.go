package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/BaSui01/ragflow/engine"
	"github.com/BaSui01/ragflow/types"
)

var (
	chatSession  string
	chatStrategy string
	chatScope    []string
	chatWeb      bool
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive conversation over the indexed documents",
		Long: `Chat starts a REPL. Each line is one turn; answers carry [E#]
citations into the retrieved evidence.

In-session commands:
  /reset             clear the conversation history
  /strategy <name>   switch retrieval strategy (basic, knowledge_graph, hybrid)
  /exit              quit`,
		Args: cobra.NoArgs,
		RunE: runChat,
	}
	cmd.Flags().StringVar(&chatSession, "session", "", "Session ID (default: random)")
	cmd.Flags().StringVar(&chatStrategy, "strategy", "", "Retrieval strategy: basic, knowledge_graph, hybrid")
	cmd.Flags().StringSliceVar(&chatScope, "scope", nil, "Restrict retrieval to these document IDs")
	cmd.Flags().BoolVar(&chatWeb, "web", false, "Enable the web evidence source for hybrid retrieval")
	return cmd
}

func runChat(cmd *cobra.Command, _ []string) error {
	e, err := buildEngine()
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	ctx := cmd.Context()
	e.StartSweeper(ctx)

	sessionID := chatSession
	if sessionID == "" {
		sessionID = uuid.NewString()[:8]
	}

	update := engine.SessionUpdate{Scope: chatScope}
	if chatStrategy != "" {
		s := types.Strategy(chatStrategy)
		update.Strategy = &s
	}
	if cmd.Flags().Changed("web") {
		update.WebSearch = &chatWeb
	}
	if _, err := e.ConfigureSession(ctx, sessionID, update); err != nil {
		return err
	}

	fmt.Printf("session %s — %d documents indexed (/exit to quit)\n", sessionID, len(e.Documents()))

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if done, err := handleChatCommand(cmd, e, sessionID, line); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			} else if done {
				return nil
			}
			continue
		}

		result, err := e.Turn(ctx, engine.TurnRequest{SessionID: sessionID, Query: line})
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		printTurn(result)
	}
	return scanner.Err()
}

func handleChatCommand(cmd *cobra.Command, e *engine.Engine, sessionID, line string) (done bool, err error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/exit", "/quit":
		return true, nil
	case "/reset":
		return false, e.ResetSession(cmd.Context(), sessionID)
	case "/strategy":
		if len(fields) != 2 {
			return false, fmt.Errorf("usage: /strategy <basic|knowledge_graph|hybrid>")
		}
		s := types.Strategy(fields[1])
		_, err := e.ConfigureSession(cmd.Context(), sessionID, engine.SessionUpdate{Strategy: &s})
		return false, err
	default:
		return false, fmt.Errorf("unknown command %s", fields[0])
	}
}

func printTurn(result *engine.TurnResult) {
	if result.Blocked {
		fmt.Printf("[blocked] %s\n", result.RejectionReason)
		return
	}
	if result.Degraded {
		fmt.Printf("[degraded to %s: %s]\n", result.Strategy, result.DegradedReason)
	}
	for _, w := range result.Warnings {
		fmt.Printf("[warn] %s\n", w)
	}
	fmt.Println(result.Message.Text)
	if len(result.Message.Citations) > 0 {
		fmt.Println("cited:")
		for _, c := range result.Message.Citations {
			switch c.Source {
			case types.EvidenceWeb:
				fmt.Printf("  - %s\n", c.URL)
			case types.EvidenceGraph:
				fmt.Printf("  - %s\n", strings.Join(c.Path, " > "))
			default:
				fmt.Printf("  - %s (%s)\n", c.ChunkID, c.DocumentID)
			}
		}
	}
}
