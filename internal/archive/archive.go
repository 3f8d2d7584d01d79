// Package archive offloads response bodies to object storage before expired
// rows are purged, so metered payloads stay recoverable after cleanup.
package archive

import (
	"context"
)

type Archiver interface {
	Archive(ctx context.Context, client, key string, body []byte) error
}
