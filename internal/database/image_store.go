// internal/database/image_store.go
package database

import (
	"context"
	"errors"
	"io"

	"gator-overflow/internal/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SaveImage streams an upload into the GridFS bucket and returns its reference.
func (m *MongoDB) SaveImage(ctx context.Context, src io.Reader, filename, contentType string) (string, error) {
	ref := uuid.New().String()
	opts := options.GridFSUpload().SetMetadata(bson.M{"contentType": contentType})

	if err := m.Images.UploadFromStreamWithID(ref, filename, src, opts); err != nil {
		return "", utils.NewAppError(utils.ErrDatabase, "failed to store image", err)
	}
	return ref, nil
}

// OpenImage opens a stored image for streaming.
func (m *MongoDB) OpenImage(ctx context.Context, ref string) (*Image, error) {
	stream, err := m.Images.OpenDownloadStream(ref)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return nil, utils.NewAppError(utils.ErrNotFound, "Image not found: "+ref, err)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to open image", err)
	}

	file := stream.GetFile()
	contentType := "application/octet-stream"
	if file.Metadata != nil {
		if ct, ok := file.Metadata.Lookup("contentType").StringValueOK(); ok {
			contentType = ct
		}
	}

	return &Image{
		Ref:         ref,
		Filename:    file.Name,
		ContentType: contentType,
		Size:        file.Length,
		Content:     stream,
	}, nil
}
