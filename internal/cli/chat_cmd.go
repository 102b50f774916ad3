package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/soyeahso/sipdash/internal/domain"
	"github.com/spf13/cobra"
)

func newChatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "chats",
		Aliases: []string{"chat"},
		Short:   "List, read and write agent chats",
	}

	var agentID int64
	list := &cobra.Command{
		Use:   "list",
		Short: "List chats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				var chats []domain.Chat
				if agentID != 0 {
					chats = a.chat.FetchChatsByAgent(ctx, agentID)
				} else {
					chats = a.chat.FetchChats(ctx)
				}
				if chats == nil && a.chat.Error() != "" {
					return storeError(a.chat, "Failed to fetch chats")
				}
				out := cmd.OutOrStdout()
				if len(chats) == 0 {
					fmt.Fprintln(out, "(no chats)")
					return nil
				}
				for _, c := range chats {
					fmt.Fprintf(out, "  %-6d %-30s agent=%d messages=%d\n", c.ID, chatTitle(c), c.AgentConfigID, c.MessageCount)
				}
				return nil
			})
		},
	}
	list.Flags().Int64Var(&agentID, "agent", 0, "only chats with this agent")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "show <chat-id>",
		Short: "Print a chat with its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app) error {
				c := a.chat.LoadChat(ctx, id)
				if c == nil {
					return storeError(a.chat, "Failed to load chat")
				}
				printChat(cmd.OutOrStdout(), *c)
				return nil
			})
		},
	})

	var title string
	create := &cobra.Command{
		Use:   "create <agent-id>",
		Short: "Open a chat with an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agent, err := parseID(args[0])
			if err != nil {
				return err
			}
			var t *string
			if title != "" {
				t = &title
			}
			return withApp(func(ctx context.Context, a *app) error {
				c := a.chat.CreateChat(ctx, agent, t)
				if c == nil {
					return storeError(a.chat, "Failed to create chat")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created chat %d\n", c.ID)
				return nil
			})
		},
	}
	create.Flags().StringVar(&title, "title", "", "chat title")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "rename <chat-id> <title>",
		Short: "Rename a chat",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app) error {
				if a.chat.UpdateChat(ctx, id, args[1]) == nil {
					return storeError(a.chat, "Failed to update chat")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed chat %d\n", id)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <chat-id>",
		Short: "Delete a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app) error {
				if !a.chat.DeleteChat(ctx, id) {
					return storeError(a.chat, "Failed to delete chat")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted chat %d\n", id)
				return nil
			})
		},
	})

	var sender string
	send := &cobra.Command{
		Use:   "send <chat-id> [message]",
		Short: "Post a message into a chat",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			req := domain.CreateMessageRequest{
				ChatID:        id,
				Sender:        sender,
				Content:       strings.Join(args[1:], " "),
				IsUserMessage: true,
			}
			return withApp(func(ctx context.Context, a *app) error {
				m := a.chat.SendMessage(ctx, id, req)
				if m == nil {
					return storeError(a.chat, "Failed to send message")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Sent message %d\n", m.ID)
				return nil
			})
		},
	}
	send.Flags().StringVar(&sender, "sender", "user", "sender name")
	cmd.AddCommand(send)

	return cmd
}

func chatTitle(c domain.Chat) string {
	if c.Title == nil || *c.Title == "" {
		return "(untitled)"
	}
	return *c.Title
}

func printChat(w io.Writer, c domain.Chat) {
	fmt.Fprintf(w, "Chat %d: %s (agent %d)\n", c.ID, chatTitle(c), c.AgentConfigID)
	for _, m := range c.Messages {
		ts := ""
		if !m.Timestamp.IsZero() {
			ts = m.Timestamp.Format("2006-01-02 15:04:05") + " "
		}
		fmt.Fprintf(w, "  %s%s: %s\n", ts, m.Sender, m.Content)
		if mm := m.Metrics; mm != nil && mm.TotalProcessingTimeMs > 0 {
			fmt.Fprintf(w, "    (%dms total)\n", mm.TotalProcessingTimeMs)
		}
	}
}
