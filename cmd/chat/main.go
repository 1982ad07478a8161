// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"search-agent/internal/app"
	"search-agent/internal/app/chat"
	"search-agent/internal/runtime/session"
	"search-agent/pkg/config"
)

var version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "配置文件路径（YAML，可选）")
	showVersion := flag.Bool("version", false, "显示版本")
	flag.Parse()

	if *showVersion {
		fmt.Println("search-agent " + version)
		return 0
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := app.NewBootstrap(ctx, cfg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		b.Close(shutdownCtx)
	}()

	sess := session.New("")
	loop := chat.NewLoop(os.Stdin, os.Stdout, b.Engine, sess, chat.Options{
		StripThink: cfg.Agent.StripThink,
		Stream:     cfg.Agent.Stream,
		Logger:     b.Logger,
	})
	b.Logger.Info("conversation started", "session_id", sess.ID, "model", b.ModelRef.Name)
	if err := loop.Run(ctx); err != nil {
		return 1
	}
	return 0
}
