package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableRender(t *testing.T) {
	tbl := newTable("ID", "NAME", "UNREAD").alignRight(2)
	tbl.addRow("u1", "Alice", "3")
	tbl.addRow("u-long", "李雷", "12")

	var buf bytes.Buffer
	require.NoError(t, tbl.render(&buf))
	assert.Equal(t,
		"ID      NAME   UNREAD\n"+
			"u1      Alice       3\n"+
			"u-long  李雷       12\n",
		buf.String())
}

func TestTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, newTable().render(&buf))
	assert.Empty(t, buf.String())
}
