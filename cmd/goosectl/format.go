package main

import (
	"fmt"
	"io"
	"time"

	"github.com/slonegd/gogoose/goose"
)

// writeFrame печатает заголовок и набор данных кадра
func writeFrame(w io.Writer, name string, frame *goose.Frame) {
	h := frame.Header()
	eth := frame.Ethernet()

	fmt.Fprintf(w, "%s %s -> %s appID 0x%04X", name, eth.Src, eth.Dst, h.AppID)
	if eth.VLAN != nil {
		fmt.Fprintf(w, " vlan %d/%d", eth.VLAN.ID, eth.VLAN.Priority)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  gocbRef %s\n  datSet %s\n", h.GoCBRef, h.DatSet)
	if h.GoID != "" {
		fmt.Fprintf(w, "  goID %s\n", h.GoID)
	}
	fmt.Fprintf(w, "  t %s timeAllowedToLive %dms\n", h.Timestamp.UTC().Format(time.RFC3339Nano), h.TimeAllowedToLive)
	fmt.Fprintf(w, "  stNum %d sqNum %d confRev %d test %t ndsCom %t\n", h.StNum, h.SqNum, h.ConfRev, h.Test, h.NdsCom)
	fmt.Fprintf(w, "  validity %s\n", frame.Validity())

	keys := frame.Keys()
	for i, e := range frame.DataSet().Elements() {
		if i < len(keys) {
			fmt.Fprintf(w, "  %-10s %s\n", keys[i], e)
		} else {
			fmt.Fprintf(w, "  [%d] %s\n", i, e)
		}
	}
}
