package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/zhouzirui/z-arena/backend/internal/model/chat"
	"github.com/zhouzirui/z-arena/backend/internal/model/debate"
	"github.com/zhouzirui/z-arena/backend/pkg/client"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	server := flag.String("server", envOr("ARENA_SERVER", "http://localhost:8080"), "辩论中继服务地址")
	topic := flag.String("topic", "", "辩题（新建对话时必填）")
	conversationID := flag.String("conversation", "", "继续已有对话的 ID")
	rounds := flag.Int("rounds", 2, "回合数，每回合正方与反方各发言一次")
	defenderSpec := flag.String("defender", "ollama:llama3.2", "正方模型，格式 provider:model")
	criticSpec := flag.String("critic", "ollama:llama3.2", "反方模型，格式 provider:model")
	apiKey := flag.String("key", os.Getenv("PROVIDER_API_KEY"), "可选的上游 API Key")
	whisper := flag.String("whisper", "", "开始前发给某一方的悄悄话，格式 role:text")
	timeout := flag.Duration("timeout", client.DefaultTurnTimeout, "单回合超时时间")

	flag.Parse()

	defender, err := parseSelection(*defenderSpec, *apiKey)
	if err != nil {
		log.Fatalf("-defender: %v", err)
	}
	critic, err := parseSelection(*criticSpec, *apiKey)
	if err != nil {
		log.Fatalf("-critic: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(*server, nil)
	c.TurnTimeout = *timeout

	convID := *conversationID
	if convID == "" {
		if strings.TrimSpace(*topic) == "" {
			flag.Usage()
			log.Fatal("请通过 -topic 指定辩题或通过 -conversation 继续已有对话")
		}
		conv, err := c.CreateConversation(ctx, *topic)
		if err != nil {
			log.Fatalf("创建对话失败: %v", err)
		}
		convID = conv.ID
		log.Printf("conversation=%s topic=%q", conv.ID, conv.Topic)
	}

	if *whisper != "" {
		if err := sendWhisper(ctx, c, convID, *whisper); err != nil {
			log.Fatalf("发送悄悄话失败: %v", err)
		}
	}

	providers := debate.Providers{Defender: defender, Critic: critic}
	for round := 1; round <= *rounds; round++ {
		for _, role := range []debate.Role{debate.RoleDefender, debate.RoleCritic} {
			if err := runTurn(ctx, c, convID, role, providers); err != nil {
				if errors.Is(err, context.Canceled) {
					log.Println("已中断")
					return
				}
				log.Fatalf("round %d %s: %v", round, role, err)
			}
		}
	}
}

func runTurn(ctx context.Context, c *client.Client, convID string, role debate.Role, providers debate.Providers) error {
	fmt.Printf("\n[%s]\n", strings.ToUpper(string(role)))
	started := time.Now()

	text, err := c.RequestTurn(ctx, debate.TurnRequest{
		ConversationID: convID,
		CurrentTurn:    role,
		Providers:      providers,
	}, func(fragment string) {
		fmt.Print(fragment)
	})
	fmt.Println()

	if err == nil {
		log.Printf("%s finished in %s (%d chars)", role, time.Since(started).Round(time.Millisecond), len(text))
		return nil
	}

	// The relay only stores completed turns; keep what the user already saw.
	if strings.TrimSpace(text) != "" {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if _, saveErr := c.SaveMessage(saveCtx, chat.Message{
			ConversationID: convID,
			Sender:         role.Sender(),
			Content:        text,
		}); saveErr != nil {
			log.Printf("[WARN] 保存部分回复失败: %v", saveErr)
		} else {
			log.Printf("saved partial %s reply (%d chars)", role, len(text))
		}
	}
	return err
}

func sendWhisper(ctx context.Context, c *client.Client, convID, spec string) error {
	role, text, ok := strings.Cut(spec, ":")
	if !ok || !debate.Role(role).Valid() || strings.TrimSpace(text) == "" {
		return fmt.Errorf("invalid whisper %q, expected defender:text or critic:text", spec)
	}
	_, err := c.SaveMessage(ctx, chat.Message{
		ConversationID: convID,
		Sender:         chat.SenderUser,
		Content:        text,
		IsWhisper:      true,
		TargetRole:     role,
	})
	return err
}

func parseSelection(spec, apiKey string) (*debate.ProviderSelection, error) {
	provider, model, ok := strings.Cut(spec, ":")
	if !ok || provider == "" || model == "" {
		return nil, fmt.Errorf("expected provider:model, got %q", spec)
	}
	return &debate.ProviderSelection{Provider: provider, Model: model, APIKey: apiKey}, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
