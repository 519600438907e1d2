package engine

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/drummonds/resumeraster/database"
	"github.com/drummonds/resumeraster/engine/pdfrenderer"
	"github.com/oklog/ulid/v2"
)

const (
	resumeKeyPrefix = "resume:"
	hashKeyPrefix   = "hash:"
	resumeFolder    = "resumes"
)

// ErrResumeNotFound is returned when no record exists for an id
var ErrResumeNotFound = errors.New("resume not found")

// Resume is the stored metadata for an uploaded resume and its rendered first page
type Resume struct {
	ID          string    `json:"id"`
	CompanyName string    `json:"companyName"`
	JobTitle    string    `json:"jobTitle"`
	FileName    string    `json:"fileName"`
	ResumePath  string    `json:"resumePath"`
	ImagePath   string    `json:"imagePath"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"createdAt"`
}

func resumeKey(id string) string {
	return resumeKeyPrefix + id
}

func hashKey(hash string) string {
	return hashKeyPrefix + hash
}

// calculateHash is the duplicate detection key for an upload
func calculateHash(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// newResume lays out the object paths for a fresh upload
func newResume(fileName, companyName, jobTitle, hash string, createdAt time.Time) *Resume {
	id := ulid.MustNew(ulid.Timestamp(createdAt), ulid.DefaultEntropy()).String()
	imageName := pdfrenderer.ImageName(fileName)
	stem := strings.TrimSuffix(imageName, ".png")
	folder := path.Join(resumeFolder, id)
	return &Resume{
		ID:          id,
		CompanyName: strings.TrimSpace(companyName),
		JobTitle:    strings.TrimSpace(jobTitle),
		FileName:    fileName,
		ResumePath:  path.Join(folder, stem+".pdf"),
		ImagePath:   path.Join(folder, imageName),
		Hash:        hash,
		CreatedAt:   createdAt.UTC(),
	}
}

// saveResume writes the record and its hash index
func saveResume(ctx context.Context, kv database.KVStore, resume *Resume) error {
	encoded, err := json.Marshal(resume)
	if err != nil {
		return fmt.Errorf("unable to encode resume: %w", err)
	}
	if err := kv.Set(ctx, resumeKey(resume.ID), string(encoded)); err != nil {
		return err
	}
	return kv.Set(ctx, hashKey(resume.Hash), resume.ID)
}

// fetchResume returns ErrResumeNotFound for unknown ids
func fetchResume(ctx context.Context, kv database.KVStore, id string) (*Resume, error) {
	value, ok, err := kv.Get(ctx, resumeKey(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrResumeNotFound
	}
	resume := new(Resume)
	if err := json.Unmarshal([]byte(value), resume); err != nil {
		return nil, fmt.Errorf("corrupt resume record %s: %w", id, err)
	}
	return resume, nil
}

// fetchResumeByHash returns nil, nil when no resume has this content
func fetchResumeByHash(ctx context.Context, kv database.KVStore, hash string) (*Resume, error) {
	id, ok, err := kv.Get(ctx, hashKey(hash))
	if err != nil || !ok {
		return nil, err
	}
	resume, err := fetchResume(ctx, kv, id)
	if errors.Is(err, ErrResumeNotFound) {
		Logger.Warn("Dangling hash index entry", "hash", hash, "id", id)
		return nil, nil
	}
	return resume, err
}

// fetchAllResumes returns records newest first, skipping unreadable ones
func fetchAllResumes(ctx context.Context, kv database.KVStore) ([]Resume, error) {
	entries, err := kv.List(ctx, resumeKeyPrefix)
	if err != nil {
		return nil, err
	}
	resumes := make([]Resume, 0, len(entries))
	for _, entry := range entries {
		var resume Resume
		if err := json.Unmarshal([]byte(entry.Value), &resume); err != nil {
			Logger.Warn("Skipping corrupt resume record", "key", entry.Key, "error", err)
			continue
		}
		resumes = append(resumes, resume)
	}
	sort.SliceStable(resumes, func(i, j int) bool {
		if !resumes[i].CreatedAt.Equal(resumes[j].CreatedAt) {
			return resumes[i].CreatedAt.After(resumes[j].CreatedAt)
		}
		return resumes[i].ID > resumes[j].ID
	})
	return resumes, nil
}

// deleteResumeRecord removes the record and, if it still points here, the hash index
func deleteResumeRecord(ctx context.Context, kv database.KVStore, resume *Resume) error {
	if id, ok, err := kv.Get(ctx, hashKey(resume.Hash)); err != nil {
		return err
	} else if ok && id == resume.ID {
		if err := kv.Delete(ctx, hashKey(resume.Hash)); err != nil {
			return err
		}
	}
	return kv.Delete(ctx, resumeKey(resume.ID))
}
