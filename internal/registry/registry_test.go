package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/corvales/nftmarketd/internal/domain"
)

var (
	collection = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
	alice      = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	bob        = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	operator   = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
)

func TestMintAssignsSequentialIDs(t *testing.T) {
	r := New("NFT", "NFT", collection)
	ctx := context.Background()

	first, err := r.Mint(ctx, alice, "ipfs://1")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	second, err := r.Mint(ctx, bob, "ipfs://2")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	if first != 1 || second != 2 {
		t.Fatalf("token ids = %d,%d, want 1,2", first, second)
	}
	if r.TokenCount() != 2 {
		t.Fatalf("TokenCount = %d, want 2", r.TokenCount())
	}

	uri, err := r.TokenURI(ctx, first)
	if err != nil {
		t.Fatalf("TokenURI: %v", err)
	}
	if uri != "ipfs://1" {
		t.Fatalf("TokenURI = %q, want ipfs://1", uri)
	}
}

func TestMintToZeroAddressFails(t *testing.T) {
	r := New("NFT", "NFT", collection)
	if _, err := r.Mint(context.Background(), common.Address{}, "ipfs://0"); err == nil {
		t.Fatal("Mint to the zero address must fail")
	}
}

func TestOwnerOfUnknownToken(t *testing.T) {
	r := New("NFT", "NFT", collection)
	ctx := context.Background()

	if _, err := r.OwnerOf(ctx, collection, 7); !errors.Is(err, domain.ErrTokenNotFound) {
		t.Fatalf("OwnerOf error = %v, want ErrTokenNotFound", err)
	}

	// A different contract address never resolves.
	id, _ := r.Mint(ctx, alice, "ipfs://1")
	other := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	if _, err := r.OwnerOf(ctx, other, id); !errors.Is(err, domain.ErrTokenNotFound) {
		t.Fatalf("OwnerOf wrong contract error = %v, want ErrTokenNotFound", err)
	}
}

func TestTransferFromByOwner(t *testing.T) {
	r := New("NFT", "NFT", collection)
	ctx := context.Background()

	id, _ := r.Mint(ctx, alice, "ipfs://1")
	if err := r.TransferFrom(ctx, collection, alice, alice, bob, id); err != nil {
		t.Fatalf("TransferFrom: %v", err)
	}

	owner, _ := r.OwnerOf(ctx, collection, id)
	if owner != bob {
		t.Fatalf("owner = %s, want bob", owner.Hex())
	}

	aliceBal, _ := r.BalanceOf(ctx, alice)
	bobBal, _ := r.BalanceOf(ctx, bob)
	if aliceBal != 0 || bobBal != 1 {
		t.Fatalf("balances = %d,%d, want 0,1", aliceBal, bobBal)
	}
}

func TestTransferFromByApprovedOperator(t *testing.T) {
	r := New("NFT", "NFT", collection)
	ctx := context.Background()

	id, _ := r.Mint(ctx, alice, "ipfs://1")

	// Unapproved operator is rejected.
	err := r.TransferFrom(ctx, collection, operator, alice, bob, id)
	if !errors.Is(err, domain.ErrTransferNotAuthorized) {
		t.Fatalf("TransferFrom error = %v, want ErrTransferNotAuthorized", err)
	}

	if err := r.SetApprovalForAll(ctx, alice, operator, true); err != nil {
		t.Fatalf("SetApprovalForAll: %v", err)
	}
	ok, _ := r.IsApprovedForAll(ctx, collection, alice, operator)
	if !ok {
		t.Fatal("IsApprovedForAll = false, want true")
	}

	if err := r.TransferFrom(ctx, collection, operator, alice, bob, id); err != nil {
		t.Fatalf("approved TransferFrom: %v", err)
	}
	owner, _ := r.OwnerOf(ctx, collection, id)
	if owner != bob {
		t.Fatalf("owner = %s, want bob", owner.Hex())
	}
}

func TestTransferFromWrongOwnerFails(t *testing.T) {
	r := New("NFT", "NFT", collection)
	ctx := context.Background()

	id, _ := r.Mint(ctx, alice, "ipfs://1")
	err := r.TransferFrom(ctx, collection, bob, bob, operator, id)
	if !errors.Is(err, domain.ErrNotTokenOwner) {
		t.Fatalf("TransferFrom error = %v, want ErrNotTokenOwner", err)
	}
}

func TestApprovalRevocation(t *testing.T) {
	r := New("NFT", "NFT", collection)
	ctx := context.Background()

	id, _ := r.Mint(ctx, alice, "ipfs://1")
	_ = r.SetApprovalForAll(ctx, alice, operator, true)
	_ = r.SetApprovalForAll(ctx, alice, operator, false)

	err := r.TransferFrom(ctx, collection, operator, alice, bob, id)
	if !errors.Is(err, domain.ErrTransferNotAuthorized) {
		t.Fatalf("TransferFrom after revocation error = %v, want ErrTransferNotAuthorized", err)
	}
}
