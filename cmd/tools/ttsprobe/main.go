// ttsprobe 是一个命令行小工具，用来在不启动服务的情况下验证某个角色预设的
// 语音合成配置是否可用，并把合成结果写到本地文件试听。
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/RibomBalt/webgal-llm-puppet/internal/config"
	"github.com/RibomBalt/webgal-llm-puppet/internal/logging"
	"github.com/RibomBalt/webgal-llm-puppet/internal/model/preset"
	"github.com/RibomBalt/webgal-llm-puppet/internal/segment"
	"github.com/RibomBalt/webgal-llm-puppet/internal/service/tts"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	bot := flag.String("bot", cfg.Preset.DefaultBot, "角色预设名")
	text := flag.String("text", "您好，这是一条语音合成测试。", "要合成的文本")
	outputPath := flag.String("out", "", "输出音频文件路径 (默认 <bot>.mp3)")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")
	flag.Parse()

	presets, err := preset.LoadFiles(cfg.Preset.Files)
	if err != nil {
		log.Fatalf("预设加载失败: %v", err)
	}
	p, ok := presets.Get(*bot)
	if !ok {
		log.Fatalf("预设不存在: %s", *bot)
	}
	if p.Voice.Type == "" || p.Voice.Type == "none" {
		log.Fatalf("预设 %s 未配置语音，voice.type=%q", *bot, p.Voice.Type)
	}

	svc, err := tts.NewService(cfg.TTS, logging.New(nil, "debug").Sub("tts"))
	if err != nil {
		log.Fatalf("TTS 服务初始化失败: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// 和正式流水线保持一致：括号里的舞台提示不送去合成
	spoken := segment.StripParentheticals(*text, "")
	start := time.Now()
	audio, err := svc.Synthesize(ctx, spoken, p.Voice)
	if err != nil {
		log.Fatalf("合成失败: %v", err)
	}
	if len(audio) == 0 {
		log.Fatal("合成返回空音频")
	}

	out := *outputPath
	if out == "" {
		out = fmt.Sprintf("%s.mp3", *bot)
	}
	if err := os.WriteFile(out, audio, 0o644); err != nil {
		log.Fatalf("写入输出文件失败: %v", err)
	}

	log.Printf("合成成功: %d 字节, 耗时 %s, 已写入 %s", len(audio), time.Since(start).Round(time.Millisecond), out)
}
