// Package purger periodically deletes expired cache rows for every
// configured client, optionally archiving response bodies first.
package purger

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fofxtools/api-cache/internal/archive"
	"github.com/fofxtools/api-cache/internal/config"
	"github.com/fofxtools/api-cache/internal/store"
)

const archiveBatchLimit = 500

type Purger struct {
	logger   *logrus.Logger
	store    *store.Store
	archiver archive.Archiver
	cfg      *config.Config
}

// New builds a purger; archiver may be nil, in which case expired rows are
// deleted without archival.
func New(logger *logrus.Logger, s *store.Store, archiver archive.Archiver, cfg *config.Config) *Purger {
	return &Purger{
		logger:   logger,
		store:    s,
		archiver: archiver,
		cfg:      cfg,
	}
}

func (p *Purger) Start(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PurgeInterval)
	defer ticker.Stop()

	logEntry := p.logger.WithField("component", "cache_purger")
	logEntry.Info("Starting cache purger")

	for {
		select {
		case <-ticker.C:
			p.purgeExpired(ctx, logEntry)
		case <-ctx.Done():
			logEntry.Info("Stopping cache purger")
			return
		}
	}
}

func (p *Purger) purgeExpired(ctx context.Context, log *logrus.Entry) {
	log = log.WithField("operation", "cache_purge")

	for _, client := range p.cfg.ClientNames() {
		plain, err := store.NewTableHandle(client, false)
		if err != nil {
			log.WithFields(logrus.Fields{"client": client, "error": err}).Error("Invalid client name")
			continue
		}
		p.purgeTable(ctx, log, plain)
		p.purgeTable(ctx, log, plain.Sibling())
	}
}

func (p *Purger) purgeTable(ctx context.Context, log *logrus.Entry, h store.TableHandle) {
	log = log.WithFields(logrus.Fields{"client": h.Client, "table": h.Name()})

	if p.archiver != nil {
		p.archiveExpired(ctx, log, h)
	}

	removed, err := p.store.DeleteExpired(ctx, h)
	if err != nil {
		log.WithError(err).Error("Expired row purge failed")
		return
	}
	if removed > 0 {
		log.WithField("count", removed).Info("Purged expired cache entries")
	}
}

func (p *Purger) archiveExpired(ctx context.Context, log *logrus.Entry, h store.TableHandle) {
	rows, err := p.store.ListExpired(ctx, h, archiveBatchLimit)
	if err != nil {
		log.WithError(err).Error("Expired row listing failed")
		return
	}

	for i := range rows {
		if rows[i].ResponseBody == nil {
			continue
		}
		if err := p.archiver.Archive(ctx, h.Client, rows[i].Key, []byte(*rows[i].ResponseBody)); err != nil {
			log.WithFields(logrus.Fields{"key": rows[i].Key, "error": err}).Error("Failed to archive response body")
		}
	}
}
