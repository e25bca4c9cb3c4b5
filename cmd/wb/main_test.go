package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsReportedForRejectedCommand(t *testing.T) {
	t.Cleanup(func() {
		recorder, metricReader = nil, nil
		rootCmd.SetArgs(nil)
	})
	rootCmd.SetArgs([]string{
		"--workspace", t.TempDir(), "--metrics", "--user", "user-1-1",
		"workbasket", "create", "--key", "K1", "--domain", "DOMAIN_A", "--name", "one", "--type", "GROUP",
	})
	var stderr bytes.Buffer
	err := execute(&stderr)
	require.Error(t, err)

	out := stderr.String()
	assert.Contains(t, out, "create_workbasket")
	assert.Contains(t, out, "not_authorized")
}
