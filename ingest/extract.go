// Package ingest feeds the media index: a live channel watch with a bounded
// queue in front of an adaptive batch worker, plus an admin-triggered range
// indexer. Both modes share the extractor and the persistence path.
package ingest

import (
	"github.com/leafdriven/mediadex/model"
	"github.com/leafdriven/mediadex/platform"
)

// SkipReason classifies messages the extractor rejects.
type SkipReason string

const (
	SkipNone        SkipReason = ""
	SkipDeleted     SkipReason = "deleted"
	SkipNoMedia     SkipReason = "no_media"
	SkipUnsupported SkipReason = "unsupported"
)

// ingestedKinds are the media kinds admitted into the index.
var ingestedKinds = map[platform.MediaKind]string{
	platform.MediaVideo:    model.FileTypeVideo,
	platform.MediaAudio:    model.FileTypeAudio,
	platform.MediaDocument: model.FileTypeDocument,
}

// Extract turns a platform message into an index row, or reports why it was
// skipped. Name normalization and ref derivation happen here so both ingress
// modes persist identical rows.
func Extract(msg platform.Message) (*model.MediaFile, SkipReason) {
	if msg.Empty {
		return nil, SkipDeleted
	}
	if msg.Media == nil {
		return nil, SkipNoMedia
	}
	fileType, ok := ingestedKinds[msg.Media.Kind]
	if !ok {
		return nil, SkipUnsupported
	}

	name := msg.Media.FileName
	if name == "" {
		name = msg.Caption
	}
	return &model.MediaFile{
		FileUniqueID: msg.Media.FileUniqueID,
		FileID:       msg.Media.FileID,
		FileRef:      model.MakeFileRef(msg.Media.FileID),
		FileName:     model.NormalizeFileName(name),
		FileSize:     msg.Media.FileSize,
		FileType:     fileType,
		MimeType:     msg.Media.MimeType,
		Caption:      msg.Caption,
	}, SkipNone
}
