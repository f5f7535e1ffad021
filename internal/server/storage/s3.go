package storage

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds the settings for the S3-compatible backend.
type S3Config struct {
	RootUser     string
	RootPassword string
	Bucket       string
	Region       string
	BaseEndpoint string
}

// S3Store keeps objects in an S3-compatible bucket, encrypting client-side
// with AES-256-CTR under a key derived from the account passphrase. A random
// 16-byte IV is prepended to every object.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.RootUser,
			cfg.RootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("s3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		o.UsePathStyle = true
	})

	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
	}, nil
}

// deriveObjectKey turns the passphrase into a 256-bit cipher key.
func deriveObjectKey(passphrase string) []byte {
	key := sha256.Sum256([]byte(passphrase))
	return key[:]
}

// countingReader tracks how many plaintext bytes passed through.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (s *S3Store) Write(ctx context.Context, name string, data io.Reader, secret SecretProvider) (*Stats, error) {
	passphrase, err := secret.ProvideSecret()
	if err != nil {
		return nil, fmt.Errorf("secret: %w", err)
	}

	block, err := aes.NewCipher(deriveObjectKey(passphrase))
	if err != nil {
		return nil, fmt.Errorf("cipher init: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("iv: %w", err)
	}

	counted := &countingReader{r: data}
	encrypted := cipher.StreamReader{
		S: cipher.NewCTR(block, iv),
		R: counted,
	}

	// The cipher stream has no known length and cannot be rewound, which
	// rules out a plain PutObject; the uploader buffers it into parts.
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
		Body:   io.MultiReader(bytes.NewReader(iv), encrypted),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 put %q: %w", name, err)
	}

	return &Stats{Size: counted.n}, nil
}

func (s *S3Store) Read(ctx context.Context, name string, sink io.Writer, secret SecretProvider) error {
	passphrase, err := secret.ProvideSecret()
	if err != nil {
		return fmt.Errorf("secret: %w", err)
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("s3 get %q: %w", name, err)
	}
	defer out.Body.Close()

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(out.Body, iv); err != nil {
		return fmt.Errorf("s3 get %q: truncated object: %w", name, err)
	}

	block, err := aes.NewCipher(deriveObjectKey(passphrase))
	if err != nil {
		return fmt.Errorf("cipher init: %w", err)
	}

	decrypted := cipher.StreamReader{
		S: cipher.NewCTR(block, iv),
		R: out.Body,
	}

	if _, err := io.Copy(sink, decrypted); err != nil {
		return fmt.Errorf("s3 read %q: %w", name, err)
	}

	return nil
}

func (s *S3Store) Remove(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %q: %w", name, err)
	}

	return nil
}
