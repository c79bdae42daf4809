// Пакет filestore — хранение содержимого вложений на локальном диске.
//
// Файлы раскладываются по подкаталогам из первых двух символов имени
// (ab/abcdef….pdf), чтобы каталог не разрастался до сотен тысяч записей.
// Запись идёт через временный файл с fsync и атомарным rename,
// SHA-256 считается на лету.
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ErrInvalidName — имя файла в хранилище содержит разделители пути.
var ErrInvalidName = errors.New("недопустимое имя файла в хранилище")

const (
	tmpSuffix = ".tmp"
	// shardLen — длина префикса имени, задающего подкаталог
	shardLen = 2
	// staleTempAge — возраст, после которого временный файл считается брошенным
	staleTempAge = time.Hour
)

// FileStore — файлы вложений в директории dataDir.
type FileStore struct {
	dataDir string
}

// SaveResult — результат сохранения файла на диск.
type SaveResult struct {
	// StoragePath — путь относительно dataDir в виде "ab/имя"
	StoragePath string
	// FullPath — абсолютный путь файла на диске
	FullPath string
	// Size — размер записанных данных в байтах
	Size int64
	// Checksum — SHA-256 содержимого
	Checksum string
}

// New создаёт FileStore, при необходимости создаёт директорию
// и удаляет временные файлы, оставшиеся от прерванных загрузок.
func New(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}
	store := &FileStore{dataDir: dataDir}
	if _, err := store.RemoveStaleTemp(); err != nil {
		return nil, err
	}
	return store, nil
}

// Save записывает данные из reader в файл storageName.
// storageName — плоское имя без разделителей пути.
func (s *FileStore) Save(storageName string, reader io.Reader) (*SaveResult, error) {
	if err := validateName(storageName); err != nil {
		return nil, err
	}

	storagePath := path.Join(shardOf(storageName), storageName)
	fullPath := filepath.Join(s.dataDir, filepath.FromSlash(storagePath))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return nil, fmt.Errorf("ошибка создания каталога: %w", err)
	}

	tmpPath := fullPath + tmpSuffix
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	hasher := sha256.New()
	size, err := io.Copy(f, io.TeeReader(reader, hasher))
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmpPath, fullPath)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи файла %s: %w", storageName, err)
	}

	return &SaveResult{
		StoragePath: storagePath,
		FullPath:    fullPath,
		Size:        size,
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// FullPath возвращает абсолютный путь к файлу на диске.
// Некорректный storagePath сводится к имени внутри dataDir.
func (s *FileStore) FullPath(storagePath string) string {
	rel, err := resolve(storagePath)
	if err != nil {
		return filepath.Join(s.dataDir, filepath.Base(storagePath))
	}
	return filepath.Join(s.dataDir, rel)
}

// Exists проверяет существование файла на диске.
func (s *FileStore) Exists(storagePath string) bool {
	info, err := os.Stat(s.FullPath(storagePath))
	return err == nil && info.Mode().IsRegular()
}

// Delete удаляет файл с диска. Отсутствие файла не является ошибкой.
// Опустевший подкаталог удаляется.
func (s *FileStore) Delete(storagePath string) error {
	full := s.FullPath(storagePath)
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("ошибка удаления файла %s: %w", storagePath, err)
	}
	if dir := filepath.Dir(full); dir != filepath.Clean(s.dataDir) {
		_ = os.Remove(dir) // непустой каталог остаётся
	}
	return nil
}

// List возвращает пути всех сохранённых файлов.
func (s *FileStore) List() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(s.dataDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || strings.HasSuffix(p, tmpSuffix) {
			return nil
		}
		rel, err := filepath.Rel(s.dataDir, p)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка обхода хранилища: %w", err)
	}
	return paths, nil
}

// RemoveStaleTemp удаляет временные файлы старше staleTempAge,
// оставшиеся от прерванных загрузок.
func (s *FileStore) RemoveStaleTemp() (int, error) {
	removed := 0
	cutoff := time.Now().Add(-staleTempAge)
	err := filepath.WalkDir(s.dataDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || !strings.HasSuffix(p, tmpSuffix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(p); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("ошибка очистки временных файлов: %w", err)
	}
	return removed, nil
}

// CheckReady проверяет, что директория данных доступна на запись.
func (s *FileStore) CheckReady() (status string, message string) {
	f, err := os.CreateTemp(s.dataDir, ".ready-*")
	if err != nil {
		return "fail", fmt.Sprintf("директория вложений недоступна: %v", err)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return "ok", "директория доступна на запись"
}

// shardOf возвращает подкаталог для имени файла.
func shardOf(name string) string {
	if len(name) < shardLen || strings.Contains(name[:shardLen], ".") {
		return "_"
	}
	return strings.ToLower(name[:shardLen])
}

// resolve проверяет storagePath ("ab/имя" или плоское "имя")
// и возвращает путь относительно dataDir.
func resolve(storagePath string) (string, error) {
	dir, name := path.Split(storagePath)
	if err := validateName(name); err != nil {
		return "", err
	}
	if dir == "" {
		return name, nil
	}
	shard := strings.TrimSuffix(dir, "/")
	if err := validateName(shard); err != nil {
		return "", err
	}
	return filepath.Join(shard, name), nil
}

// validateName запрещает пустые имена и разделители пути.
func validateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
