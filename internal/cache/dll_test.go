package cache

import (
	"testing"

	"github.com/SystemBuilders/LocKey/internal/rsrvid"
)

func Test_DLL(t *testing.T) {
	dll := NewDoublyLinkedList()

	head := dll.InsertNodeToLeft(nil, NewReplicaKey(rsrvid.RsrvId(1)))
	if head.Key().Data() != rsrvid.RsrvId(1) {
		t.Fatalf("want rsrv id 1, got %v", head.Key().Data())
	}

	second := dll.InsertNodeToLeft(dll.Head, NewReplicaKey(rsrvid.RsrvId(2)))
	if dll.Head != second {
		t.Fatalf("insert to left of head should become the new head")
	}
	if dll.Head.Right() != head {
		t.Fatalf("old head should now sit to the right of the new head")
	}

	third := dll.InsertNodeToLeft(head, NewReplicaKey(rsrvid.RsrvId(3)))
	if third.Right() != head || third.Left() != second {
		t.Fatalf("node inserted between second and head is mis-linked")
	}

	dll.DeleteNode(third)
	if dll.Head.Right() != head {
		t.Fatalf("deleting the middle node should reconnect its neighbors")
	}

	dll.DeleteNode(dll.Head)
	if dll.Head != head {
		t.Fatalf("deleting the head should promote its right neighbor")
	}

	dll.DeleteNode(dll.Head)
	if dll.Head != nil {
		t.Fatalf("deleting the last node should leave an empty list")
	}
}
