package main

import (
	"github.com/rs/zerolog/log"

	"github.com/lifeproof/docsum/internal/cli"
	"github.com/lifeproof/docsum/internal/config"
	"github.com/lifeproof/docsum/internal/docstore"
	"github.com/lifeproof/docsum/internal/lambdaboot"
	"github.com/lifeproof/docsum/internal/orchestrator"
	"github.com/lifeproof/docsum/internal/store"
	"github.com/lifeproof/docsum/internal/summarizer"
)

// defaultLocalBucket is the bucket directory used with --local when no
// bucket is configured.
const defaultLocalBucket = "documents"

var awsClients *lambdaboot.AWSClients

// clients loads the AWS config on first use.
func clients() lambdaboot.AWSClients {
	if awsClients == nil {
		c := lambdaboot.InitAWS()
		awsClients = &c
	}
	return *awsClients
}

func docStore() docstore.Store {
	if localFlag == "" {
		return lambdaboot.InitDocStore(clients().Config)
	}
	dir, err := cli.ResolveDirectory(localFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid --local directory")
	}
	log.Info().Str("path", dir).Msg("Using local document store")
	return docstore.NewDirStore(dir)
}

func auditLog(cfg config.Config) store.AuditLog {
	if localFlag != "" || cfg.Resources.TrackingTable == "" {
		log.Info().Msg("Audit log kept in memory for this run")
		return store.NewMemAuditLog()
	}
	return lambdaboot.InitAuditLog(clients().Config, cfg.Resources.TrackingTable)
}

// newWorker builds an in-process Summarizer Worker. Bedrock is always
// remote; only storage follows --local.
func newWorker(cfg *config.Config, docs docstore.Store) *summarizer.Worker {
	c := clients()
	lambdaboot.ApplyModelOverride(c, cfg)
	return summarizer.New(cfg.Worker, docs, auditLog(*cfg), lambdaboot.InitBedrock(c.Config))
}

// newOrchestrator wires the dead-letter queue and completion notifier when
// they are configured and not running locally.
func newOrchestrator(cfg config.Config, worker orchestrator.Worker, policy orchestrator.Policy) *orchestrator.Orchestrator {
	var opts []orchestrator.Option
	if localFlag == "" {
		c := clients()
		if dl := lambdaboot.InitDeadLetter(c.Config, cfg.Resources.DeadLetterQueueURL); dl != nil {
			opts = append(opts, orchestrator.WithDeadLetter(dl))
		}
		if n := lambdaboot.InitNotifier(c.Config, cfg.Resources.EventBusName); n != nil {
			opts = append(opts, orchestrator.WithNotifier(n))
		}
	}
	return orchestrator.New(worker, policy, opts...)
}
