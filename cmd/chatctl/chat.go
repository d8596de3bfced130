package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Salman7o/StudyMate-sub001/client"
)

func init() {
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(messagesCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(watchCmd)
}

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "List your conversations, newest activity first",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newSDKClient()
		if err != nil {
			return err
		}
		if err := requireAuth(c); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		summaries, err := c.Conversations(ctx)
		if err != nil {
			return err
		}

		if len(summaries) == 0 {
			fmt.Println("No conversations yet.")
			return nil
		}
		for _, s := range summaries {
			online := " "
			if s.OtherUser.Online {
				online = "*"
			}
			last := ""
			if s.LastMessage != nil {
				last = s.LastMessage.Content
			}
			fmt.Printf("#%-4d %s %-20s (%s) unread:%-3d %s\n",
				s.Conversation.ID, online, s.OtherUser.Name, s.OtherUser.Role, s.UnreadCount, last)
		}
		return nil
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages <conversation-id>",
	Short: "Print a conversation's messages in sent order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		convID, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid conversation id %q", args[0])
		}

		c, _, err := newSDKClient()
		if err != nil {
			return err
		}
		if err := requireAuth(c); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		msgs, err := c.Messages(ctx, uint(convID))
		if err != nil {
			return err
		}

		for _, m := range msgs {
			printMessage(m)
		}
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <user-id> <content>",
	Short: "Send a message to a user (REST fallback path)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		receiverID, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user id %q", args[0])
		}

		c, _, err := newSDKClient()
		if err != nil {
			return err
		}
		if err := requireAuth(c); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		msg, err := c.SendMessageREST(ctx, uint(receiverID), args[1])
		if err != nil {
			return err
		}

		fmt.Printf("Sent message #%d in conversation #%d\n", msg.ID, msg.ConversationID)
		return nil
	},
}

var watchReadReceipts bool

func init() {
	watchCmd.Flags().BoolVar(&watchReadReceipts, "ack", false, "send read receipts for incoming messages")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream incoming messages over the live socket until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newSDKClient()
		if err != nil {
			return err
		}
		if err := requireAuth(c); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		rt := c.Realtime()
		rt.OnMessage(func(m client.Message) {
			printMessage(m)
			if watchReadReceipts && m.ReceiverID == rt.UserID() {
				_ = c.MarkRead(ctx, m.ID)
			}
		})
		rt.OnError(func(msg string) {
			fmt.Fprintln(os.Stderr, "server error:", msg)
		})
		rt.OnDisconnected(func(err error) {
			fmt.Fprintln(os.Stderr, "disconnected:", err)
			stop()
		})

		dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		if err := rt.Connect(dialCtx); err != nil {
			return fmt.Errorf("connect failed: %w", err)
		}
		defer rt.Close()

		fmt.Fprintln(os.Stderr, "watching (ctrl-c to stop)")
		<-ctx.Done()
		return nil
	},
}

func printMessage(m client.Message) {
	fmt.Printf("[%s] #%d %d -> %d (%s): %s\n",
		m.SentAt.Format(time.RFC3339), m.ID, m.SenderID, m.ReceiverID, m.Status, m.Content)
}
