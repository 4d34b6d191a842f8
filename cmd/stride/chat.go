package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"stridecoach/internal/controller"
)

var (
	chatUserID string
	chatConvID string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive coaching session",
	Long: `Reads messages from stdin and runs each through the controller. Both
tool servers must be reachable; the controller refuses to start otherwise.

Example:
  stride chat --user alice`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := controller.New(cfg)
		if err != nil {
			return err
		}
		convID := chatConvID
		if convID == "" {
			convID = uuid.NewString()
		}

		fmt.Printf("stridecoach ready (conversation %s). Ctrl-D to quit.\n", convID)
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				break
			}
			msg := strings.TrimSpace(scanner.Text())
			if msg == "" {
				continue
			}
			out, err := ctrl.Turn(cmd.Context(), &controller.TurnInput{
				ConversationID: convID,
				UserID:         chatUserID,
				Message:        msg,
			})
			if err != nil {
				fmt.Fprintln(os.Stderr, "turn failed:", err)
				continue
			}
			fmt.Println(out.Text)
		}
		return scanner.Err()
	},
}

var turnCmd = &cobra.Command{
	Use:   "turn [message]",
	Short: "Run a single controller turn",
	Long: `Processes one message and prints the reply. Useful for scripting and
for driving the controller from another process.

Example:
  stride turn --user alice --conversation c1 "I want to run a marathon on April 25th"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := controller.New(cfg)
		if err != nil {
			return err
		}
		convID := chatConvID
		if convID == "" {
			convID = chatUserID
		}
		out, err := ctrl.Turn(cmd.Context(), &controller.TurnInput{
			ConversationID: convID,
			UserID:         chatUserID,
			Message:        strings.Join(args, " "),
		})
		if err != nil {
			return err
		}
		fmt.Println(out.Text)
		if out.Executed {
			fmt.Printf("[executed %s]\n", out.Target)
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{chatCmd, turnCmd} {
		c.Flags().StringVar(&chatUserID, "user", "local", "user id")
		c.Flags().StringVar(&chatConvID, "conversation", "", "conversation id (defaults to a new one)")
	}
}
