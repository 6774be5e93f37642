// s3.go — backend на S3-совместимом объектном хранилище.
// Клиент инициализируется статическими credentials, опционально
// с кастомным endpoint (MinIO, R2 и другие S3-совместимые хранилища).
// Раскладка ключей зеркалит локальную:
// {keyPrefix}/{folder_path}/{stored_name}.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/bigkaa/snapdrop/internal/domain/model"
)

// S3Config — параметры объектного хранилища.
type S3Config struct {
	// Bucket — имя bucket-а (обязательный)
	Bucket string
	// Region — регион (по умолчанию us-east-1)
	Region string
	// AccessKeyID, SecretAccessKey — статические credentials
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint — кастомный endpoint для S3-совместимых хранилищ (опционально)
	Endpoint string
	// KeyPrefix — префикс всех ключей в bucket-е
	KeyPrefix string
	// PublicBaseURL — база публичных URL объектов. Если не задана,
	// URL строится по стандартной схеме AWS или из Endpoint.
	PublicBaseURL string
}

// S3 — backend на объектном хранилище.
type S3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	cfg      S3Config
}

// NewS3 создаёт S3 backend из конфигурации.
func NewS3(cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: имя bucket не задано")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	awsCfg := aws.Config{
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Region:      cfg.Region,
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3{
		client:   client,
		uploader: manager.NewUploader(client),
		cfg:      cfg,
	}, nil
}

// Kind возвращает model.BackendS3.
func (b *S3) Kind() model.StorageBackend {
	return model.BackendS3
}

// key строит ключ объекта из относительного full_path.
func (b *S3) key(fullPath string) string {
	if b.cfg.KeyPrefix == "" {
		return fullPath
	}
	return path.Join(b.cfg.KeyPrefix, fullPath)
}

// PublicURL возвращает публичный URL объекта по его full_path.
func (b *S3) PublicURL(fullPath string) string {
	key := b.key(fullPath)
	if b.cfg.PublicBaseURL != "" {
		return strings.TrimRight(b.cfg.PublicBaseURL, "/") + "/" + key
	}
	if b.cfg.Endpoint != "" {
		return strings.TrimRight(b.cfg.Endpoint, "/") + "/" + b.cfg.Bucket + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", b.cfg.Bucket, b.cfg.Region, key)
}

// EndpointURL возвращает URL endpoint-а хранилища
// (используется мониторингом зависимостей).
func (b *S3) EndpointURL() string {
	if b.cfg.Endpoint != "" {
		return b.cfg.Endpoint
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", b.cfg.Bucket, b.cfg.Region)
}

// countingReader считает фактически прочитанные байты потока.
type countingReader struct {
	r io.Reader
	n int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}

// Put загружает поток в объектное хранилище через manager.Uploader
// (multipart, не требует заранее известной длины). Размер измеряется
// на лету. PutObject у S3 атомарен: частично загруженный объект
// не становится видимым.
func (b *S3) Put(ctx context.Context, fullPath string, r io.Reader) (*PutResult, error) {
	cr := &countingReader{r: r}

	contentType := mime.TypeByExtension(path.Ext(fullPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.cfg.Bucket),
		Key:         aws.String(b.key(fullPath)),
		Body:        cr,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("s3: ошибка загрузки объекта %s: %w", fullPath, err)
	}

	return &PutResult{
		Size:      cr.n,
		RemoteURL: b.PublicURL(fullPath),
	}, nil
}

// Get открывает объект для чтения.
func (b *S3) Get(ctx context.Context, fullPath string) (io.ReadCloser, int64, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(fullPath)),
	})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("s3: ошибка чтения объекта %s: %w", fullPath, err)
	}
	return out.Body, aws.ToInt64(out.ContentLength), nil
}

// Delete удаляет объект. DeleteObject у S3 идемпотентен и не
// сообщает об отсутствии ключа, поэтому существование проверяется
// явно — контракт Backend требует ErrNotFound.
func (b *S3) Delete(ctx context.Context, fullPath string) error {
	exists, err := b.Exists(ctx, fullPath)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}

	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(fullPath)),
	})
	if err != nil {
		return fmt.Errorf("s3: ошибка удаления объекта %s: %w", fullPath, err)
	}
	return nil
}

// Exists проверяет существование объекта через HeadObject.
func (b *S3) Exists(ctx context.Context, fullPath string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(fullPath)),
	})
	if err != nil {
		var notFound *s3types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("s3: ошибка проверки объекта %s: %w", fullPath, err)
	}
	return true, nil
}

// Move перемещает объект: server-side CopyObject + DeleteObject.
func (b *S3) Move(ctx context.Context, oldPath, newPath string) error {
	copySource := url.PathEscape(b.cfg.Bucket + "/" + b.key(oldPath))

	_, err := b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(b.cfg.Bucket),
		Key:        aws.String(b.key(newPath)),
		CopySource: aws.String(copySource),
	})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return ErrNotFound
		}
		return fmt.Errorf("s3: ошибка копирования %s → %s: %w", oldPath, newPath, err)
	}

	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(oldPath)),
	})
	if err != nil {
		return fmt.Errorf("s3: ошибка удаления исходного объекта %s: %w", oldPath, err)
	}
	return nil
}

// EnsureFolder — no-op: префиксы объектного хранилища не требуют
// создания. Всегда успешен, чтобы вызывающий код был
// backend-агностичен.
func (b *S3) EnsureFolder(ctx context.Context, folderPath string) error {
	return nil
}

// FolderExists проверяет существование префикса: есть ли хотя бы
// один объект с ключом {prefix}/{folderPath}/.
func (b *S3) FolderExists(ctx context.Context, folderPath string) (bool, error) {
	out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(b.cfg.Bucket),
		Prefix:  aws.String(b.key(folderPath) + "/"),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("s3: ошибка проверки префикса %s: %w", folderPath, err)
	}
	return aws.ToInt32(out.KeyCount) > 0, nil
}
