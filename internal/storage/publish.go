package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/sirupsen/logrus"
)

// Published describes a golden record written by Publish.
type Published struct {
	Key       string
	URL       string
	ContentID string
	Updated   bool
}

// ContentID returns the CIDv1 (raw codec, sha2-256) of data.
func ContentID(data []byte) (string, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	return cid.NewCidV1(cid.Raw, sum).String(), nil
}

// Publish uploads a golden record under filename, replacing any previous
// version, and returns its URL.
func (c *Client) Publish(ctx context.Context, filename string, data []byte, contentType string) (string, error) {
	out, err := c.PublishRecord(ctx, filename, data, contentType)
	if err != nil {
		return "", err
	}
	return out.URL, nil
}

func (c *Client) PublishRecord(ctx context.Context, filename string, data []byte, contentType string) (Published, error) {
	key := strings.TrimLeft(strings.TrimSpace(filename), "/")
	if key == "" {
		return Published{}, fmt.Errorf("filename is required")
	}

	contentID, err := ContentID(data)
	if err != nil {
		return Published{}, err
	}

	exists, err := c.ObjectExists(ctx, key)
	if err != nil {
		return Published{}, err
	}

	if err := c.WriteObject(ctx, key, data, contentType, map[string]string{MetadataContentID: contentID}); err != nil {
		return Published{}, err
	}

	fields := logrus.Fields{"key": key, "bytes": len(data), "cid": contentID}
	if exists {
		c.log.WithFields(fields).Info("updated golden record")
	} else {
		c.log.WithFields(fields).Info("created golden record")
	}

	link, err := c.objectURL(ctx, key)
	if err != nil {
		return Published{}, err
	}
	return Published{Key: key, URL: link, ContentID: contentID, Updated: exists}, nil
}

func (c *Client) objectURL(ctx context.Context, key string) (string, error) {
	if c.publicBaseURL != "" {
		return c.publicBaseURL + "/" + c.bucket + "/" + escapeKey(key), nil
	}
	u, err := c.objects.PresignedGetObject(ctx, c.bucket, key, c.presignTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign get object %s: %w", key, err)
	}
	return u.String(), nil
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
