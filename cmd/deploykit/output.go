package main

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ryanuber/columnize"
)

// formatList formats "a | b | c" rows into aligned columns.
func formatList(in []string) string {
	columnConf := columnize.DefaultConfig()
	columnConf.Empty = "<none>"

	return columnize.Format(in, columnConf)
}

// formatKV formats "Key | Value" rows as "Key = Value".
func formatKV(in []string) string {
	columnConf := columnize.DefaultConfig()
	columnConf.Empty = "<none>"
	columnConf.Glue = " = "

	return columnize.Format(in, columnConf)
}

func printList(w io.Writer, rows []string) {
	fmt.Fprintln(w, formatList(rows))
}

func printKV(w io.Writer, rows []string) {
	fmt.Fprintln(w, formatKV(rows))
}

// hexOrEmpty renders zero hashes and addresses as empty cells.
func hexOrEmpty[T common.Hash | common.Address](v T) string {
	var zero T
	if v == zero {
		return ""
	}
	switch x := any(v).(type) {
	case common.Hash:
		return x.Hex()
	case common.Address:
		return x.Hex()
	}
	return ""
}
