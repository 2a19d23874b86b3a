package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/relaydesk/relay/internal/api"
	"github.com/relaydesk/relay/internal/chat"
	"github.com/relaydesk/relay/internal/config"
	"github.com/relaydesk/relay/internal/profile"
)

func main() {
	configFlag := flag.String("config", "", "config file path (default ~/.relay/config.toml)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	configPath := *configFlag
	if configPath == "" {
		configPath = profile.ConfigPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config %s: %v\n", configPath, err)
		os.Exit(1)
	}

	c := api.NewClient(cfg.API.BaseURL, cfg.API.Token, api.WithTimeout(cfg.APITimeout()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args[0] {
	case "conversations":
		cmdConversations(ctx, c, args[1:], *jsonFlag)
	case "history":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: relayctl history <conversation-id> [limit] [offset]")
			os.Exit(1)
		}
		cmdHistory(ctx, c, cfg, args[1:], *jsonFlag)
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: relayctl send <conversation-id> <text>")
			os.Exit(1)
		}
		cmdSend(ctx, c, args[1], strings.Join(args[2:], " "), *jsonFlag)
	case "send-file":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: relayctl send-file <conversation-id> <path>")
			os.Exit(1)
		}
		cmdSendFile(ctx, c, args[1], args[2], *jsonFlag)
	case "mark-read":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: relayctl mark-read <conversation-id>")
			os.Exit(1)
		}
		cmdMarkRead(ctx, c, args[1])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: relayctl [--config <path>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  conversations [search]         List conversations")
	fmt.Fprintln(os.Stderr, "  history <id> [limit] [offset]  Show message history")
	fmt.Fprintln(os.Stderr, "  send <id> <text>               Send a text message")
	fmt.Fprintln(os.Stderr, "  send-file <id> <path>          Upload and send a file")
	fmt.Fprintln(os.Stderr, "  mark-read <id>                 Clear the unread marker")
}

func cmdConversations(ctx context.Context, c *api.Client, args []string, jsonOut bool) {
	filters := api.ListFilters{}
	if len(args) > 0 {
		filters.Search = args[0]
	}
	convs, err := c.ListConversations(ctx, filters)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(convs)
		return
	}
	for _, conv := range convs {
		marker := " "
		if conv.Unread {
			marker = "*"
		}
		fmt.Printf("%s %-24s %-28s %s\n", marker, conv.ID, conv.Title, conv.LastPreview)
	}
}

func cmdHistory(ctx context.Context, c *api.Client, cfg *config.Config, args []string, jsonOut bool) {
	limit := cfg.Inbox.PageSize
	offset := 0
	if len(args) > 1 {
		_, _ = fmt.Sscanf(args[1], "%d", &limit)
	}
	if len(args) > 2 {
		_, _ = fmt.Sscanf(args[2], "%d", &offset)
	}

	page, err := c.FetchMessages(ctx, args[0], limit, offset)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(page)
		return
	}
	for _, m := range page.Messages {
		who := "<-"
		if m.Direction == chat.Outbound {
			who = "->"
		}
		ts := time.UnixMilli(m.Timestamp).Format("2006-01-02 15:04")
		body := m.Body
		if m.Kind != chat.KindText {
			body = fmt.Sprintf("[%s] %s", m.Kind, body)
		}
		fmt.Printf("%s %s [%s] %s\n", ts, who, m.Status, body)
	}
	if page.HasMore {
		fmt.Printf("(%d more, use offset %d)\n", page.Total-offset-len(page.Messages), offset+len(page.Messages))
	}
}

func cmdSend(ctx context.Context, c *api.Client, conversationID, text string, jsonOut bool) {
	msg, err := c.SendText(ctx, conversationID, text)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(msg)
		return
	}
	fmt.Printf("sent %s (%s)\n", msg.ID.Value(), msg.Status)
}

func cmdSendFile(ctx context.Context, c *api.Client, conversationID, path string, jsonOut bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		fail(err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	kind := kindForMime(mimeType)

	target, err := c.RequestUploadTarget(ctx, mimeType, string(kind), filepath.Base(path))
	if err != nil {
		fail(err)
	}
	if err := c.UploadBytes(ctx, target.UploadURL, mimeType, data); err != nil {
		fail(err)
	}
	msg, err := c.SendFromStorage(ctx, conversationID, target.StorageRef, kind)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(msg)
		return
	}
	fmt.Printf("sent %s (%s, %d bytes)\n", msg.ID.Value(), kind, len(data))
}

func cmdMarkRead(ctx context.Context, c *api.Client, conversationID string) {
	if err := c.MarkRead(ctx, conversationID); err != nil {
		fail(err)
	}
	fmt.Println("ok")
}

func kindForMime(mimeType string) chat.Kind {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return chat.KindImage
	case strings.HasPrefix(mimeType, "video/"):
		return chat.KindVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return chat.KindAudio
	default:
		return chat.KindDocument
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
