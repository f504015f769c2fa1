package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skcd-labs/sidecar-core/internal/config"
	"github.com/skcd-labs/sidecar-core/internal/types"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Drive a session's exchanges directly from the CLI",
}

var sessionDir string

func init() {
	sessionCmd.PersistentFlags().StringVar(&sessionDir, "directory", "", "Working directory")
	sessionCmd.AddCommand(sessionMessageCmd)
	sessionCmd.AddCommand(sessionPlanCmd)
	sessionCmd.AddCommand(sessionEditCmd)
	sessionCmd.AddCommand(sessionAnchoredEditCmd)
	sessionCmd.AddCommand(sessionUndoCmd)
	sessionCmd.AddCommand(sessionFeedbackCmd)
	sessionCmd.AddCommand(sessionCancelCmd)
}

func loadBootstrap() (*config.Config, context.Context, error) {
	workDir, err := GetWorkDir(sessionDir)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(workDir)
	if err != nil {
		return nil, nil, err
	}
	if m := GetGlobalModel(); m != "" {
		cfg.Model = m
	}
	return cfg, context.Background(), nil
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error marshaling result: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

var sessionMessageCmd = &cobra.Command{
	Use:   "message <session-id> <text>",
	Short: "human_message: append a Human exchange, creating the session if needed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, ctx, err := loadBootstrap()
		if err != nil {
			return err
		}
		svc, _, err := bootstrap(ctx, cfg)
		if err != nil {
			return err
		}
		id := types.SessionId(args[0])
		sess, ex, err := svc.HumanMessage(ctx, id, cfg.StorageRoot, sessionDir, args[1], types.UserContext{})
		if err != nil {
			return err
		}
		printJSON(struct {
			Session  *types.Session  `json:"session"`
			Exchange *types.Exchange `json:"exchange"`
		}{sess, ex})
		return nil
	},
}

var sessionPlanCmd = &cobra.Command{
	Use:   "plan <session-id> <prompt>",
	Short: "plan_generation: append a Plan exchange carrying the model's plan text",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, ctx, err := loadBootstrap()
		if err != nil {
			return err
		}
		svc, _, err := bootstrap(ctx, cfg)
		if err != nil {
			return err
		}
		sess, ex, err := svc.PlanGeneration(ctx, types.SessionId(args[0]), args[1])
		if err != nil {
			return err
		}
		printJSON(struct {
			Session  *types.Session  `json:"session"`
			Exchange *types.Exchange `json:"exchange"`
		}{sess, ex})
		return nil
	},
}

var editSymbolName, editSymbolFile string

var sessionEditCmd = &cobra.Command{
	Use:   "edit <session-id>",
	Short: "code_edit_agentic: spawn an InitialRequest against a root symbol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, ctx, err := loadBootstrap()
		if err != nil {
			return err
		}
		svc, _, err := bootstrap(ctx, cfg)
		if err != nil {
			return err
		}
		root := types.SymbolId{Name: editSymbolName, File: editSymbolFile}
		sess, ex, err := svc.CodeEditAgentic(ctx, types.SessionId(args[0]), root, nil)
		if err != nil {
			return err
		}
		printJSON(struct {
			Session  *types.Session  `json:"session"`
			Exchange *types.Exchange `json:"exchange"`
		}{sess, ex})
		return nil
	},
}

func init() {
	sessionEditCmd.Flags().StringVar(&editSymbolName, "symbol", "", "Root symbol name")
	sessionEditCmd.Flags().StringVar(&editSymbolFile, "file", "", "Root symbol's file, if already located")
	sessionEditCmd.MarkFlagRequired("symbol")
}

var (
	anchoredSymbolName string
	anchoredFile       string
	anchoredStartLine  int
	anchoredStartCol   int
	anchoredEndLine    int
	anchoredEndCol     int
)

var sessionAnchoredEditCmd = &cobra.Command{
	Use:   "anchored-edit <session-id>",
	Short: "code_edit_anchored: edit scoped to a non-empty selection range",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, ctx, err := loadBootstrap()
		if err != nil {
			return err
		}
		svc, _, err := bootstrap(ctx, cfg)
		if err != nil {
			return err
		}
		symbol := types.SymbolId{Name: anchoredSymbolName, File: anchoredFile}
		uc := types.UserContext{
			Variables: []types.VariableInformation{{
				Kind:  types.VariableSelection,
				File:  anchoredFile,
				Name:  anchoredSymbolName,
				Start: types.Position{Line: anchoredStartLine, Character: anchoredStartCol},
				End:   types.Position{Line: anchoredEndLine, Character: anchoredEndCol},
			}},
		}
		sess, ex, err := svc.CodeEditAnchored(ctx, types.SessionId(args[0]), symbol, uc)
		if err != nil {
			return err
		}
		printJSON(struct {
			Session  *types.Session  `json:"session"`
			Exchange *types.Exchange `json:"exchange"`
		}{sess, ex})
		return nil
	},
}

func init() {
	sessionAnchoredEditCmd.Flags().StringVar(&anchoredSymbolName, "symbol", "", "Symbol name to edit")
	sessionAnchoredEditCmd.Flags().StringVar(&anchoredFile, "file", "", "File containing the selection")
	sessionAnchoredEditCmd.Flags().IntVar(&anchoredStartLine, "start-line", 0, "Selection start line")
	sessionAnchoredEditCmd.Flags().IntVar(&anchoredStartCol, "start-col", 0, "Selection start column")
	sessionAnchoredEditCmd.Flags().IntVar(&anchoredEndLine, "end-line", 0, "Selection end line")
	sessionAnchoredEditCmd.Flags().IntVar(&anchoredEndCol, "end-col", 0, "Selection end column")
	sessionAnchoredEditCmd.MarkFlagRequired("symbol")
	sessionAnchoredEditCmd.MarkFlagRequired("file")
}

var sessionUndoCmd = &cobra.Command{
	Use:   "undo <session-id> <target-exchange-id>",
	Short: "handle_session_undo: truncate exchanges after target-exchange-id",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, ctx, err := loadBootstrap()
		if err != nil {
			return err
		}
		svc, _, err := bootstrap(ctx, cfg)
		if err != nil {
			return err
		}
		sess, dropped, err := svc.HandleSessionUndo(ctx, types.SessionId(args[0]), types.ExchangeId(args[1]))
		if err != nil {
			return err
		}
		printJSON(struct {
			Session *types.Session    `json:"session"`
			Dropped []*types.Exchange `json:"dropped"`
		}{sess, dropped})
		return nil
	},
}

var feedbackAccepted bool
var feedbackText string

var sessionFeedbackCmd = &cobra.Command{
	Use:   "feedback <session-id> <exchange-id>",
	Short: "feedback_for_exchange: mark an exchange Accepted or Rejected",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, ctx, err := loadBootstrap()
		if err != nil {
			return err
		}
		svc, _, err := bootstrap(ctx, cfg)
		if err != nil {
			return err
		}
		sess, reply, err := svc.FeedbackForExchange(ctx, types.SessionId(args[0]), types.ExchangeId(args[1]), feedbackAccepted, feedbackText)
		if err != nil {
			return err
		}
		printJSON(struct {
			Session *types.Session  `json:"session"`
			Reply   *types.Exchange `json:"reply,omitempty"`
		}{sess, reply})
		return nil
	},
}

func init() {
	sessionFeedbackCmd.Flags().BoolVar(&feedbackAccepted, "accept", false, "Accept instead of reject")
	sessionFeedbackCmd.Flags().StringVar(&feedbackText, "text", "", "Rejection reason; appends a reactive AgentReply when rejecting")
}

var sessionCancelCmd = &cobra.Command{
	Use:   "cancel <session-id> <exchange-id>",
	Short: "set_exchange_as_cancelled: fire the exchange's cancellation token if running",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, ctx, err := loadBootstrap()
		if err != nil {
			return err
		}
		svc, _, err := bootstrap(ctx, cfg)
		if err != nil {
			return err
		}
		fired, err := svc.SetExchangeAsCancelled(ctx, types.SessionId(args[0]), types.ExchangeId(args[1]))
		if err != nil {
			return err
		}
		printJSON(struct {
			Fired bool `json:"cancelled"`
		}{fired})
		return nil
	},
}
