package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hashicorp/go-hclog"

	"github.com/jmylchreest/topicrelay/internal/compression"
	"github.com/jmylchreest/topicrelay/internal/config"
	"github.com/jmylchreest/topicrelay/internal/metrics"
	"github.com/jmylchreest/topicrelay/internal/relay"
	"github.com/jmylchreest/topicrelay/internal/rewriter"
	"github.com/jmylchreest/topicrelay/pkg/rosmsg"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newCache creates the rewriter cache described by cfg. m may be nil.
func newCache(cfg *config.Config, logger hclog.Logger, m *metrics.Metrics) (*rewriter.Cache, error) {
	opts := rewriter.Options{
		FramePrefix:       cfg.FramePrefix,
		CacheRoot:         cfg.CacheRoot,
		TemplatePath:      cfg.TemplatePath(),
		HeaderPath:        cfg.HeaderPath(),
		SearchPaths:       cfg.SchemaPaths,
		Compiler:          cfg.Compiler,
		MaxParallelBuilds: cfg.MaxParallelBuilds,
		CompileTimeout:    cfg.CompileTimeout,
		Hasher:            rosmsg.NewRegistry(cfg.SchemaPaths...),
		Logger:            logger,
	}
	if m != nil {
		opts.Observer = m
	}
	return rewriter.New(opts)
}

// relayTopics converts configured topics, filling in missing hashes from
// the local message definitions.
func relayTopics(cfg *config.Config, registry *rosmsg.Registry) ([]relay.Topic, error) {
	topics := make([]relay.Topic, 0, len(cfg.Topics))
	for _, tc := range cfg.Topics {
		codec, err := compression.ParseCodec(tc.Compress)
		if err != nil {
			return nil, fmt.Errorf("topic %s: %w", tc.Name, err)
		}

		md5 := tc.MD5
		if md5 == "" {
			md5, err = registry.MD5(tc.Type)
			if err != nil {
				return nil, fmt.Errorf("topic %s: no md5 configured: %w", tc.Name, err)
			}
		}

		topics = append(topics, relay.Topic{
			Name:  tc.Name,
			Type:  tc.Type,
			MD5:   md5,
			Rate:  tc.Rate,
			Codec: codec,
		})
	}
	return topics, nil
}
