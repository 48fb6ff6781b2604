// Package azuredns manages dns-01 challenge records in Azure DNS zones.
package azuredns

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/dns/armdns"
	"github.com/cpu/vaultcert/azure"
	"github.com/cpu/vaultcert/dns01"
	"go.uber.org/zap"
)

// TagMetadataKey is the record set metadata key holding the correlation tag
// of the run that last wrote the record set.
const TagMetadataKey = "InstanceId"

// Manager is a dns01.ZoneManager for every public DNS zone of one
// subscription.
type Manager struct {
	zoneClient   *armdns.ZonesClient
	recordClient *armdns.RecordSetsClient
	log          *zap.Logger
}

// NewManager returns a Manager for subscriptionID.
func NewManager(subscriptionID string, cred azcore.TokenCredential, opts *arm.ClientOptions, log *zap.Logger) (*Manager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if subscriptionID == "" {
		return nil, fmt.Errorf("azuredns: subscription ID must not be empty")
	}
	zc, err := armdns.NewZonesClient(subscriptionID, cred, opts)
	if err != nil {
		return nil, err
	}
	rc, err := armdns.NewRecordSetsClient(subscriptionID, cred, opts)
	if err != nil {
		return nil, err
	}
	return &Manager{
		zoneClient:   zc,
		recordClient: rc,
		log:          log.With(zap.String("component", "azure-dns")),
	}, nil
}

func (m *Manager) ListZones(ctx context.Context) ([]dns01.Zone, error) {
	var zones []dns01.Zone
	pager := m.zoneClient.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			m.log.Error("listing zones", zap.Error(err))
			return nil, azure.StabilizeError(err)
		}
		for _, z := range page.Value {
			if z == nil || z.Name == nil || z.ID == nil {
				continue
			}
			zones = append(zones, dns01.Zone{Name: *z.Name, ID: *z.ID})
		}
	}
	m.log.Debug("listed zones", zap.Int("zones", len(zones)))
	return zones, nil
}

func resourceGroup(zone dns01.Zone) (string, error) {
	id, err := arm.ParseResourceID(zone.ID)
	if err != nil {
		return "", fmt.Errorf("zone %q: %w", zone.Name, err)
	}
	if id.ResourceGroupName == "" {
		return "", fmt.Errorf("zone %q: no resource group in ID %q", zone.Name, zone.ID)
	}
	return id.ResourceGroupName, nil
}

func (m *Manager) GetTXT(ctx context.Context, zone dns01.Zone, label string) (*dns01.TXTRecordSet, error) {
	rg, err := resourceGroup(zone)
	if err != nil {
		return nil, err
	}
	resp, err := m.recordClient.Get(ctx, rg, zone.Name, label, armdns.RecordTypeTXT, nil)
	if err != nil {
		if azure.IsNotFound(err) {
			return nil, nil
		}
		m.log.Error("reading TXT", zap.String("zone", zone.Name), zap.String("label", label), zap.Error(err))
		return nil, azure.StabilizeError(err)
	}
	return fromRecordSet(label, &resp.RecordSet), nil
}

func (m *Manager) UpsertTXT(ctx context.Context, zone dns01.Zone, set *dns01.TXTRecordSet) error {
	rg, err := resourceGroup(zone)
	if err != nil {
		return err
	}

	opts := &armdns.RecordSetsClientCreateOrUpdateOptions{}
	if set.Etag == "" {
		// Fail if the record set was created concurrently.
		opts.IfNoneMatch = to.Ptr("*")
	} else {
		opts.IfMatch = to.Ptr(set.Etag)
	}

	_, err = m.recordClient.CreateOrUpdate(ctx, rg, zone.Name, set.Label, armdns.RecordTypeTXT, toRecordSet(set), opts)
	if err != nil {
		m.log.Error("upserting TXT", zap.String("zone", zone.Name), zap.String("label", set.Label), zap.Error(err))
		return azure.StabilizeError(err)
	}
	return nil
}

func fromRecordSet(label string, rs *armdns.RecordSet) *dns01.TXTRecordSet {
	set := &dns01.TXTRecordSet{Label: label}
	if rs.Etag != nil {
		set.Etag = *rs.Etag
	}
	props := rs.Properties
	if props == nil {
		return set
	}
	if props.TTL != nil {
		set.TTL = *props.TTL
	}
	if tag := props.Metadata[TagMetadataKey]; tag != nil {
		set.Tag = *tag
	}
	for _, rec := range props.TxtRecords {
		if rec == nil {
			continue
		}
		// A TXT record with several strings is one logical value.
		var v string
		for _, s := range rec.Value {
			if s != nil {
				v += *s
			}
		}
		set.Values = append(set.Values, v)
	}
	return set
}

func toRecordSet(set *dns01.TXTRecordSet) armdns.RecordSet {
	ttl := set.TTL
	if ttl == 0 {
		ttl = dns01.DefaultTTL
	}
	records := make([]*armdns.TxtRecord, 0, len(set.Values))
	for _, v := range set.Values {
		records = append(records, &armdns.TxtRecord{Value: []*string{to.Ptr(v)}})
	}
	return armdns.RecordSet{
		Properties: &armdns.RecordSetProperties{
			TTL:        to.Ptr(ttl),
			TxtRecords: records,
			Metadata:   map[string]*string{TagMetadataKey: to.Ptr(set.Tag)},
		},
	}
}
