package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"pairchat/client"
	"pairchat/domain"
	"pairchat/reconcile"

	"github.com/Netflix/go-env"
	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

type Config struct {
	ServerURL string `env:"SERVER_URL,default=http://localhost:8080"`
	WsURL     string `env:"WS_URL,default=ws://localhost:8080/ws"`
	UserID    string `env:"USER_ID,required=true"`
	Token     string `env:"TOKEN,required=true"`
	LogLevel  string `env:"LOG_LEVEL,default=warn"`
}

func main() {
	// 1. Load config
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	// 2. Wire the API client and the reconciliation engine
	api := client.New(logger, config.ServerURL, config.Token)
	engine := reconcile.NewEngine(logger, config.UserID, api)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Realtime feed: every gateway event goes through the engine
	listener, err := client.Listen(ctx, logger, config.WsURL, config.Token, func(m domain.Message) {
		engine.HandleNewMessage(m)
		if m.ConversationID == engine.Selected() && m.SenderID != config.UserID {
			printMessage(config.UserID, m)
		}
	})
	if err != nil {
		log.Fatalf("Gateway connection failed: %v", err)
	}
	defer func() { _ = listener.Close() }()

	if err := engine.LoadConversations(0, 50); err != nil {
		log.Fatalf("Loading conversations failed: %v", err)
	}

	color.Cyan.Printf("Connected as %s. Type 'help' for commands.\n", config.UserID)
	repl(config.UserID, engine, listener)
}

func repl(userID string, engine *reconcile.Engine, listener *client.Listener) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		command, rest, _ := strings.Cut(line, " ")

		switch command {
		case "help":
			fmt.Println("ls            list conversations")
			fmt.Println("open <n>      open conversation number n")
			fmt.Println("msg <user>    start or open a conversation with user")
			fmt.Println("send <text>   send into the open conversation")
			fmt.Println("read          mark the open conversation as read")
			fmt.Println("quit          exit")
		case "ls":
			printConversations(userID, engine.Conversations())
		case "open":
			index, err := strconv.Atoi(rest)
			entries := engine.Conversations()
			if err != nil || index < 1 || index > len(entries) {
				color.Red.Println("Unknown conversation number")
				continue
			}
			openConversation(userID, engine, listener, entries[index-1])
		case "msg":
			if rest == "" {
				color.Red.Println("Usage: msg <user>")
				continue
			}
			conversationID := engine.StartConversation(rest)
			for _, entry := range engine.Conversations() {
				if entry.Conversation.ID == conversationID {
					openConversation(userID, engine, listener, entry)
					break
				}
			}
		case "send":
			selected := engine.Selected()
			if rest == "" || selected == uuid.Nil {
				color.Red.Println("Open a conversation first, then: send <text>")
				continue
			}
			if _, err := engine.Send(selected, rest, nil); err != nil {
				// The draft survives in the failure for a retry
				color.Red.Printf("Send failed: %v\n", err)
			}
		case "read":
			if updated, err := engine.MarkRead(engine.Selected()); err == nil {
				color.Gray.Printf("%d messages marked as read\n", updated)
			}
		case "quit", "exit":
			return
		case "":
		default:
			color.Red.Println("Unknown command, try 'help'")
		}
	}
}

func openConversation(userID string, engine *reconcile.Engine, listener *client.Listener, entry reconcile.Entry) {
	engine.SelectConversation(entry.Conversation.ID)
	if !entry.Temp {
		_ = listener.Join(entry.Conversation.ID)
		if err := engine.RefreshHistory(entry.Conversation.ID, 0, 50); err != nil {
			color.Red.Printf("History fetch failed: %v\n", err)
		}
	}
	color.Cyan.Printf("-- conversation with %s --\n", entry.OtherUserID)
	for _, m := range engine.Messages(entry.Conversation.ID) {
		printMessage(userID, m)
	}
}

func printConversations(userID string, entries []reconcile.Entry) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"#", "With", "Last message", "Messages"})
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	for i, entry := range entries {
		preview := ""
		if last := entry.Conversation.LastMessage; last != nil {
			preview = last.Content
			if last.SenderID == userID {
				preview = "you: " + preview
			}
		}
		table.Append([]string{
			strconv.Itoa(i + 1),
			entry.OtherUserID,
			preview,
			strconv.FormatInt(entry.Conversation.MessageCount, 10),
		})
	}
	table.Render()
}

func printMessage(userID string, m domain.Message) {
	stamp := m.CreatedAt.Local().Format("15:04:05")
	switch {
	case m.Status == reconcile.StatusPending:
		color.Gray.Printf("[%s] %s: %s (sending...)\n", stamp, m.SenderID, m.Content)
	case m.SenderID == userID:
		color.Green.Printf("[%s] you: %s\n", stamp, m.Content)
	default:
		color.Yellow.Printf("[%s] %s: %s\n", stamp, m.SenderID, m.Content)
	}
}
