package mapreduce

import (
	"strconv"
	"strings"

	"distcompute/internal/record"
)

// WordCount is the canonical example job: Map splits each
// input line into words and emits a (word, "1") KV pair per word; Reduce
// sums the counts per key.
type WordCount struct{}

func (WordCount) Map(in record.Reader, out record.Writer) error {
	for {
		rec, err := in.Read()
		if err == record.ErrNoMoreRecords {
			return nil
		}
		if err != nil {
			return err
		}
		for _, word := range strings.Fields(string(rec.Raw)) {
			kv, err := record.EncodeKV(word, "1")
			if err != nil {
				return err
			}
			if err := out.Write(kv); err != nil {
				return err
			}
		}
	}
}

func (WordCount) Reduce(in record.Reader, out record.Writer) error {
	counts := make(map[string]int)
	order := make([]string, 0)
	for {
		rec, err := in.Read()
		if err == record.ErrNoMoreRecords {
			break
		}
		if err != nil {
			return err
		}
		kv, err := record.DecodeKV(rec)
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(kv.Value)
		if err != nil {
			return err
		}
		if _, seen := counts[kv.Key]; !seen {
			order = append(order, kv.Key)
		}
		counts[kv.Key] += n
	}
	for _, key := range order {
		kv, err := record.EncodeKV(key, strconv.Itoa(counts[key]))
		if err != nil {
			return err
		}
		if err := out.Write(kv); err != nil {
			return err
		}
	}
	return nil
}
