package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	gonanoid "github.com/matoous/go-nanoid/v2"

	config "github.com/relaypost/relaypost/configs"
	"github.com/relaypost/relaypost/internal/models"
	"github.com/relaypost/relaypost/internal/repository"
)

// MediaService stores uploaded files in R2 and records them as media
// assets. Providers later pull the media from the public URL.
type MediaService interface {
	Upload(ctx context.Context, userID int64, files []*multipart.FileHeader) ([]*models.MediaAsset, error)
	ListAssets(ctx context.Context, userID int64) ([]*models.MediaAsset, error)
}

type mediaService struct {
	cfg    config.Config
	assets repository.MediaAssetRepository
}

func NewMediaService(cfg config.Config, assets repository.MediaAssetRepository) MediaService {
	return &mediaService{cfg: cfg, assets: assets}
}

func (s *mediaService) r2Client() (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(s.cfg.R2.AccessKey, s.cfg.R2.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", s.cfg.R2.AccountID))
	}), nil
}

func (s *mediaService) uploadToR2(ctx context.Context, key string, file []byte, contentType string) error {
	client, err := s.r2Client()
	if err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.R2.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(file),
		ContentType: aws.String(contentType),
	}
	if _, err := client.PutObject(ctx, input); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (s *mediaService) Upload(ctx context.Context, userID int64, files []*multipart.FileHeader) ([]*models.MediaAsset, error) {
	allowedTypes := map[string]struct{}{
		"mp4": {}, "mov": {}, "jpeg": {}, "png": {}, "jpg": {},
	}

	assets := make([]*models.MediaAsset, 0, len(files))
	for _, file := range files {
		fileContent, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("error opening file: %w", err)
		}

		fileBytes, err := io.ReadAll(fileContent)
		fileContent.Close()
		if err != nil {
			return nil, fmt.Errorf("error reading file content: %w", err)
		}

		fileType, err := filetype.Match(fileBytes)
		if err != nil || fileType == types.Unknown {
			return nil, fmt.Errorf("unsupported file type: %w", err)
		}
		if _, ok := allowedTypes[fileType.Extension]; !ok {
			return nil, fmt.Errorf("file type %s is not allowed", fileType.Extension)
		}

		asset, err := s.saveFile(ctx, userID, file.Filename, fileType.MIME.Value, fileBytes)
		if err != nil {
			return nil, fmt.Errorf("error uploading file: %w", err)
		}
		assets = append(assets, asset)
	}
	return assets, nil
}

func (s *mediaService) saveFile(ctx context.Context, userID int64, fileName, contentType string, file []byte) (*models.MediaAsset, error) {
	key, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	if err := s.uploadToR2(ctx, key, file, contentType); err != nil {
		return nil, err
	}

	asset := &models.MediaAsset{
		UserID:   userID,
		FileName: fileName,
		FileType: contentType,
		FileSize: int64(len(file)),
		FileURL:  fmt.Sprintf("%s/%s", s.cfg.R2.PublicURL, key),
	}

	assetID, err := s.assets.Create(ctx, asset)
	if err != nil {
		return nil, err
	}
	asset.ID = assetID

	return asset, nil
}

func (s *mediaService) ListAssets(ctx context.Context, userID int64) ([]*models.MediaAsset, error) {
	return s.assets.ListByUserID(ctx, userID)
}
