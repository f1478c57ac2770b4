package services

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	"koursa_back_end/internal/database"
)

// UploadEvidence stocke une pièce justificative de litige dans MinIO et
// retourne la clé d'objet (jamais une URL publique : le bucket est privé)
func UploadEvidence(ctx context.Context, tripID string, file *multipart.FileHeader) (string, error) {
	if database.MinIO == nil {
		return "", fmt.Errorf("MinIO non initialisé")
	}
	f, err := file.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()

	// Clé déterministe par course, nom aléatoire pour éviter les collisions
	key := fmt.Sprintf("disputes/%s/%s%s", tripID, uuid.NewString(), filepath.Ext(file.Filename))

	bucket := os.Getenv("MINIO_BUCKET")
	_, err = database.MinIO.PutObject(ctx, bucket, key, f, file.Size,
		minio.PutObjectOptions{ContentType: file.Header.Get("Content-Type")})
	if err != nil {
		return "", err
	}

	return key, nil
}

// EvidenceURL génère une URL signée à durée limitée pour la console ops
func EvidenceURL(ctx context.Context, key string, duration time.Duration) (string, error) {
	if database.MinIO == nil {
		return "", fmt.Errorf("MinIO non initialisé")
	}

	reqParams := make(url.Values)
	presignedURL, err := database.MinIO.PresignedGetObject(
		ctx,
		os.Getenv("MINIO_BUCKET"),
		key,
		duration,
		reqParams,
	)
	if err != nil {
		return "", err
	}

	return presignedURL.String(), nil
}
