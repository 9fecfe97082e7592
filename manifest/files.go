package manifest

import (
	"context"
	"fmt"
	"io/ioutil"
	"strings"

	"github.com/streamingfast/dstore"
)

// ReadFile fetches a resolved manifest reference through dstore, so mapping
// programs and ABIs may live on local disk or in object storage.
func ReadFile(ctx context.Context, location string) ([]byte, error) {
	baseURL, name := splitLocation(location)
	if name == "" {
		return nil, fmt.Errorf("invalid file location %q", location)
	}

	store, err := dstore.NewStore(baseURL, "", "", false)
	if err != nil {
		return nil, fmt.Errorf("setting up store %q: %w", baseURL, err)
	}

	reader, err := store.OpenObject(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", location, err)
	}
	defer reader.Close()

	content, err := ioutil.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", location, err)
	}
	return content, nil
}

func splitLocation(location string) (baseURL string, name string) {
	idx := strings.LastIndex(location, "/")
	if idx < 0 {
		return ".", location
	}

	baseURL, name = location[:idx], location[idx+1:]
	if baseURL == "" {
		baseURL = "/"
	}
	return baseURL, name
}
