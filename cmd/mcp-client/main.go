// Command mcp-client is an interactive terminal client for the /mcp endpoint.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"todo-assistant/internal/mcpclient"
	"todo-assistant/internal/protocol"
)

func main() {
	baseURL := flag.String("url", envOr("MCP_SERVER_URL", "http://localhost:3000"), "server base URL")
	flag.Parse()

	ctx := context.Background()
	client := mcpclient.New(*baseURL)

	health, err := client.Health(ctx)
	if err != nil {
		log.Fatalf("❌ Server at %s is not reachable: %v", *baseURL, err)
	}
	fmt.Printf("✅ Connected to %s (protocol %s)\n", *baseURL, health.Version)
	fmt.Println("Type a message, /tools to list tools, /reset to start over, /quit to exit.")

	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !in.Scan() {
			return
		}
		line := strings.TrimSpace(in.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return
		case "/reset":
			client.Reset()
			fmt.Println("🔄 Conversation reset")
			continue
		case "/tools":
			list, err := client.Tools(ctx)
			if err != nil {
				fmt.Printf("❌ %v\n", err)
				continue
			}
			for _, t := range list {
				fmt.Printf("  • %s: %s\n", t.Function.Name, t.Function.Description)
			}
			continue
		}

		msgs, err := client.Send(ctx, line)
		if err != nil {
			fmt.Printf("❌ %v\n", err)
			continue
		}
		for _, m := range msgs {
			printMessage(m)
		}
	}
}

func printMessage(m protocol.Message) {
	switch m.Role {
	case protocol.RoleTool:
		fmt.Printf("🔧 %s → %s\n", m.Name, m.Content.String())
	default:
		if text := m.Content.String(); text != "" {
			fmt.Printf("🤖 %s\n", text)
		}
		for _, call := range m.Content.ToolCalls() {
			fmt.Printf("⏳ pending tool call %s(%s)\n", call.Function.Name, call.Function.Arguments)
		}
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
