package main

import (
	"chat-relay/repositories"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", "data/badger", "Path to badger DB")
	room := flag.String("room", "", "Only dump this room")
	summary := flag.Bool("summary", false, "Count messages per room instead of listing them")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	prefix := "msg:"
	if *room != "" {
		prefix += url.QueryEscape(*room) + ":"
	}

	table := newTable()
	counts := map[string]int{}
	if *summary {
		table.SetHeader([]string{"Room", "Messages"})
	} else {
		table.SetHeader([]string{"Key", "Room", "At", "Author", "Content", "Reactions"})
	}

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			err := item.Value(func(v []byte) error {
				var m repositories.DiskMessage
				if err := json.Unmarshal(v, &m); err != nil {
					fmt.Printf("Error decoding key %s: %v\n", string(item.Key()), err)
					return nil
				}
				if *summary {
					counts[m.Room]++
					return nil
				}
				table.Append([]string{
					shortKey(string(item.Key())),
					m.Room,
					m.At.Format("2006-01-02 15:04:05"),
					m.Author,
					content(m),
					reactions(m.Reactions),
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	if *summary {
		rooms := make([]string, 0, len(counts))
		for r := range counts {
			rooms = append(rooms, r)
		}
		sort.Strings(rooms)
		for _, r := range rooms {
			table.Append([]string{r, fmt.Sprint(counts[r])})
		}
	}
	table.Render()
}

func newTable() *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

// shortKey keeps the timestamp part of "msg:{room}:{timestamp}:{uuid}" and the first uuid block.
func shortKey(key string) string {
	parts := strings.Split(key, ":")
	if len(parts) < 4 {
		return key
	}
	id := parts[len(parts)-1]
	if len(id) > 8 {
		id = id[:8]
	}
	return parts[len(parts)-2] + ":" + id
}

func content(m repositories.DiskMessage) string {
	if m.File != nil {
		return fmt.Sprintf("[%s] %s (%d bytes)", m.File.MimeType, m.File.Name, m.File.Size)
	}
	if runes := []rune(m.Content); len(runes) > 60 {
		return string(runes[:57]) + "..."
	}
	return m.Content
}

func reactions(r map[string][]string) string {
	var parts []string
	for emoji, users := range r {
		parts = append(parts, fmt.Sprintf("%s:%d", emoji, len(users)))
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	return badger.Open(opts)
}
