package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/hostwatch/hostwatch/internal/agent"
)

func main() {
	agentConfig, err := agent.NewAgentConfig()
	if err != nil {
		log.Fatal("Failed to parse configuration: ", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to create logger: ", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	sugar.Infof("Starting monitoring agent for %s", agentConfig.ServerName)
	sugar.Infof("Central server: %s", agentConfig.ServerURL)
	sugar.Infof("Collection interval: %d seconds", agentConfig.PollInterval)

	counters := &agent.Counters{}
	queue := agent.NewQueue(agentConfig.QueueCapacity, agentConfig.BatchSize, counters)
	transmitter := agent.NewTransmitter(agentConfig, sugar, counters)
	collectors := agent.DefaultCollectors(agentConfig.ServerName)

	a := agent.NewAgent(agentConfig, collectors, queue, transmitter, sugar, counters)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		sugar.Fatalf("agent exited with error: %v", err)
	}
}
