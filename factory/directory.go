package factory

import (
	"strings"

	"github.com/warp/port-invoice/generic"
	"github.com/warp/port-invoice/services"
)

// Client table columns.
const (
	ColClient   = "Vessel/Client"
	ColType     = "Type"
	ColCustomer = "Customer"
)

// clientTypes maps the client table's Type column to directory sets.
// Types not listed here get a set named after the lower-cased type.
var clientTypes = map[string]string{
	"THONIER":       services.SetPurseiner,
	"CARGO":         services.SetCargo,
	"AGENT":         services.SetAgent,
	"BYCATCH":       services.SetByCatch,
	"SHIPPING LINE": services.SetShippingLine,
}

// ShoreCostClients pay the shore cost when fish travels in an IPHS truck.
var ShoreCostClients = []string{services.CustomerDardanel, "IOT"}

// BuildDirectory groups the client table into named sets. Ship owners are
// the Customer column of purseiner rows. IOT is always a shipping line.
func BuildDirectory(t *generic.Table) (*generic.Directory, error) {
	if t == nil {
		return nil, ErrNoTable
	}
	if err := t.Require(ColClient, ColType); err != nil {
		return nil, err
	}

	dir := generic.NewDirectory()
	t.Each(func(r generic.Row) {
		client := r.Upper(ColClient)
		kind := r.Upper(ColType)
		if client == "" || kind == "" {
			return
		}
		set, ok := clientTypes[kind]
		if !ok {
			set = strings.ToLower(kind)
		}
		dir.Add(set, client)
		if set == services.SetPurseiner {
			if owner := r.Upper(ColCustomer); owner != "" {
				dir.Add(services.SetShipOwner, owner)
			}
		}
	})
	dir.Add(services.SetShippingLine, "IOT")
	dir.Add(services.SetShoreCost, ShoreCostClients...)
	return dir, nil
}
