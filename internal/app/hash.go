package app

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

const hashSampleBytes = 32 * 1024

// calcVideoHash derives the video's identifier from its path, owner, size
// and a sample of its contents. Eight hex chars keep URLs short; collisions
// are caught at ingest time against the database.
func calcVideoHash(path, userID string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if fi.Size() == 0 {
		return "", fmt.Errorf("file %q is empty", path)
	}

	h := sha256.New()
	io.WriteString(h, path+userID+strconv.FormatInt(fi.Size(), 10))

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.CopyN(h, f, hashSampleBytes); err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil))[:8], nil
}

// moveFile renames src to dst, falling back to copy-and-delete when the
// rename crosses filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
