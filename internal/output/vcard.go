package output

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/emersion/go-vcard"

	"contact-insights-go/internal/types"
)

// WriteVCards exports persons as a vCard 4.0 address book, target.vcf.
func (w *Writer) WriteVCards(target string, persons []types.Person) (string, error) {
	path, err := w.path(target + ".vcf")
	if err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}

	enc := vcard.NewEncoder(f)
	for _, p := range persons {
		card := vcard.Card{}
		card.SetValue(vcard.FieldVersion, "4.0")
		card.SetValue(vcard.FieldUID, p.ID)
		card.SetName(&vcard.Name{FamilyName: p.Surname, GivenName: p.Name})
		card.SetValue(vcard.FieldFormattedName, p.Surname+" "+p.Name)
		card.SetValue(vcard.FieldNote, "Age: "+strconv.Itoa(p.Age))
		if err := enc.Encode(card); err != nil {
			return "", errors.Join(fmt.Errorf("encode person %s: %w", p.ID, err), f.Close())
		}
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	w.metrics.CountReport("vcard")
	return path, nil
}
