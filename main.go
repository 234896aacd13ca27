package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"GCProject/global"
	"GCProject/logger"
	"GCProject/module/chat/model"
	"GCProject/service/chat"
	"GCProject/service/rest"
	"GCProject/service/session"
	"GCProject/tools/ids"
	"GCProject/tools/safe"

	"go.uber.org/zap"
)

// Line-oriented terminal client. Commands: /rooms, /join <n>, /leave, /who,
// /quit; anything else is sent to the active room.
func main() {
	cfg, err := global.Load()
	if err != nil {
		logger.Error("config load failed", zap.Error(err))
		os.Exit(1)
	}
	ids.SetNodeID(cfg.NodeID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := buildStore(cfg)
	if err != nil {
		logger.Error("session store", zap.Error(err))
		os.Exit(1)
	}
	identity, err := store.Current(ctx)
	if err != nil {
		logger.Error("not signed in", zap.Error(err))
		os.Exit(1)
	}

	restClient := rest.NewClient(rest.Config{
		BaseURL: cfg.APIBaseURL,
		Token:   func() string { return identity.AuthToken },
	})

	sink := func(n model.Notification) {
		fmt.Printf("\n*** [%s] %s\n", n.Kind, n.Message)
	}
	sess := chat.NewSession(chat.SessionConf{},
		chat.NewConnManager(chat.ConnConf{URL: cfg.ServerURL}),
		restClient, sink)
	if err := sess.Start(ctx, identity); err != nil {
		logger.Error("session start failed", zap.Error(err))
		os.Exit(1)
	}
	defer sess.Stop()

	safe.Go("cli.render", func() { renderLoop(sess) })

	fmt.Printf("signed in as %s. /rooms to list rooms, /quit to exit\n", identity.Username)
	var rooms []model.Room
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case line == "/rooms":
			rooms, err = restClient.Groups(ctx)
			if err != nil {
				fmt.Println("could not load rooms:", err)
				continue
			}
			for i, r := range rooms {
				fmt.Printf("%2d. %s - %s\n", i+1, r.Name, r.Description)
			}
		case strings.HasPrefix(line, "/join "):
			idx, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "/join ")))
			if err != nil || idx < 1 || idx > len(rooms) {
				fmt.Println("usage: /join <number from /rooms>")
				continue
			}
			room := rooms[idx-1]
			sess.SelectRoom(&room)
			fmt.Println("joined", room.Name)
		case line == "/leave":
			sess.SelectRoom(nil)
			fmt.Println("left room")
		case line == "/who":
			for _, u := range sess.State().Users {
				fmt.Println(" -", u.Username)
			}
		default:
			sess.TypingInput()
			if err := sess.SendMessage(line); err != nil {
				fmt.Println("not sent:", err)
			}
		}
	}
}

// renderLoop prints messages and typing indicators as they arrive. Exits
// with the session.
func renderLoop(sess *chat.Session) {
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()
	seen := 0
	var lastTyping string
	for {
		select {
		case <-sess.Done():
			return
		case <-ticker.C:
		}
		snap := sess.State()
		msgs := snap.Messages
		if len(msgs) < seen {
			// Room switched, stream was reset.
			seen = 0
		}
		for ; seen < len(msgs); seen++ {
			m := msgs[seen]
			fmt.Printf("\n[%s] %s: %s\n> ", m.CreatedAt.Format("15:04"), m.Sender.Username, m.Content)
		}
		typing := strings.Join(snap.Typing, ", ")
		if typing != lastTyping {
			if typing != "" {
				fmt.Printf("\n(%s typing...)\n> ", typing)
			}
			lastTyping = typing
		}
	}
}

func buildStore(cfg global.AppConfig) (session.Store, error) {
	if cfg.RedisAddr != "" {
		return session.NewRedisStore(session.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.SessionKey,
		})
	}
	if cfg.AuthToken != "" {
		return session.FromToken(cfg.AuthToken)
	}
	return nil, fmt.Errorf("set CHAT_REDIS_ADDR or CHAT_AUTH_TOKEN to sign in")
}
