package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ashwinyue/next-tutor/internal/client"
	"github.com/ashwinyue/next-tutor/internal/tui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	var (
		server = flag.String("server", envOr("NEXT_TUTOR_SERVER", "http://localhost:8080"), "next-tutor API address")
		user   = flag.String("user", os.Getenv("NEXT_TUTOR_USER_ID"), "learner id (UUID)")
		topic  = flag.String("topic", "", "start a session on this topic right away")
	)
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: next-tutor-tui [--server=URL] --user=UUID [--topic=TOPIC] [file ...]")
		flag.PrintDefaults()
	}
	flag.Parse()

	if _, err := uuid.Parse(*user); err != nil {
		fmt.Fprintln(os.Stderr, "a learner id is required: pass --user or set NEXT_TUTOR_USER_ID")
		os.Exit(2)
	}
	c := client.New(*server, *user)

	// 命令行给出的文件先上传
	for _, path := range flag.Args() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		f, err := c.Upload(ctx, path)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "upload %s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("%s: %s (%d chunks)\n", f.OriginalName, f.Status, f.ChunkCount)
		if f.ErrorMessage != "" {
			fmt.Printf("  %s\n", f.ErrorMessage)
		}
	}

	p := tea.NewProgram(tui.New(c, *topic), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "next-tutor-tui: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
